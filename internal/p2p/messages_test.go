package p2p

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/mevanet/mevanet-chain/pkg/types"
)

func TestMessages_JSONRoundTrip(t *testing.T) {
	var id types.Hash
	id[0] = 0x42

	notify := NotifyNewBlock{
		Block: BlockCompleteEntry{
			Block:        []byte{0x01, 0x02},
			Transactions: [][]byte{{0x03}, {0x04, 0x05}},
		},
		CurrentChainHeight: 77,
	}
	data, err := json.Marshal(&notify)
	if err != nil {
		t.Fatal(err)
	}
	var back NotifyNewBlock
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(notify, back) {
		t.Error("NotifyNewBlock round trip mismatch")
	}

	chainReq := RequestChain{SparseChain: []types.Hash{id, {}}}
	data, err = json.Marshal(&chainReq)
	if err != nil {
		t.Fatal(err)
	}
	var chainBack RequestChain
	if err := json.Unmarshal(data, &chainBack); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(chainReq, chainBack) {
		t.Error("RequestChain round trip mismatch")
	}

	objResp := ResponseGetObjects{
		Blocks:        []BlockCompleteEntry{{Block: []byte{0x09}}},
		Transactions:  [][]byte{{0x0a}},
		MissedIDs:     []types.Hash{id},
		CurrentHeight: 12,
	}
	data, err = json.Marshal(&objResp)
	if err != nil {
		t.Fatal(err)
	}
	var objBack ResponseGetObjects
	if err := json.Unmarshal(data, &objBack); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(objResp, objBack) {
		t.Error("ResponseGetObjects round trip mismatch")
	}
}
