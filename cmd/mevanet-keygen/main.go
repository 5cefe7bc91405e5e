// Command mevanet-keygen generates account key material offline: spend
// and view key pairs and the base58 address. With a passphrase the keys
// are derived deterministically; otherwise they are random.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/mevanet/mevanet-chain/config"
	"github.com/mevanet/mevanet-chain/pkg/crypto"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	testnet := flag.Bool("testnet", false, "generate a testnet address")
	fromSeed := flag.Bool("seed", false, "derive keys from a passphrase read without echo")
	flag.Parse()

	var spend, view crypto.KeyPair
	if *fromSeed {
		fmt.Fprint(os.Stderr, "seed passphrase: ")
		passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read passphrase:", err)
			return 1
		}
		if len(passphrase) == 0 {
			fmt.Fprintln(os.Stderr, "empty passphrase")
			return 1
		}
		spend = crypto.GenerateDeterministicKeys(append([]byte("mevanet-spend/"), passphrase...))
		view = crypto.GenerateDeterministicKeys(append([]byte("mevanet-view/"), passphrase...))
	} else {
		spend = crypto.GenerateKeys()
		view = crypto.GenerateKeys()
	}

	address := types.AccountAddress{
		SpendPublicKey: spend.Public,
		ViewPublicKey:  view.Public,
	}
	prefix := uint64(config.AddressBase58Prefix)
	if *testnet {
		prefix = config.TestnetAddressBase58Prefix
	}

	fmt.Println("address:     ", types.FormatAddress(prefix, address))
	fmt.Println("spend public:", spend.Public)
	fmt.Println("spend secret:", hex.EncodeToString(spend.Secret[:]))
	fmt.Println("view public: ", view.Public)
	fmt.Println("view secret: ", hex.EncodeToString(view.Secret[:]))
	return 0
}
