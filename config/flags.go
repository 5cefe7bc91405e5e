package config

import (
	"flag"
	"strings"
)

// Flags holds parsed command-line flags for the node daemon.
type Flags struct {
	Help    bool
	Version bool

	Network string
	DataDir string
	Config  string

	CheckpointsFile string
	AllowDeepReorg  bool
	EnableIndices   bool
	NoBlobs         bool

	P2P            bool
	P2PBind        string
	P2PPort        int
	SeedNodes      string
	PriorityNodes  string
	ExclusiveNodes string
	BanListFile    string
	MaxPeers       int

	RPC     bool
	RPCBind string
	RPCPort int

	LogLevel string
	LogJSON  bool
	LogFile  string
}

// ParseFlags registers and parses daemon flags from args.
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("mevanetd", flag.ContinueOnError)

	fs.BoolVar(&f.Help, "help", false, "print usage and exit")
	fs.BoolVar(&f.Version, "version", false, "print version and exit")

	fs.StringVar(&f.Network, "network", string(Mainnet), "network to join (mainnet or testnet)")
	fs.StringVar(&f.DataDir, "data-dir", "", "data directory (default: platform specific)")
	fs.StringVar(&f.Config, "config", "", "path to a JSON config file")

	fs.StringVar(&f.CheckpointsFile, "checkpoints-file", "", "CSV file of height,hash checkpoint pins")
	fs.BoolVar(&f.AllowDeepReorg, "allow-deep-reorg", false, "lift the reorg depth limit")
	fs.BoolVar(&f.EnableIndices, "blockchain-indices", false, "maintain payment-id indices")
	fs.BoolVar(&f.NoBlobs, "no-blobs", false, "do not cache block hashing blobs")

	fs.BoolVar(&f.P2P, "p2p", true, "enable the p2p adapter")
	fs.StringVar(&f.P2PBind, "p2p-bind", "", "p2p listen address")
	fs.IntVar(&f.P2PPort, "p2p-port", 0, "p2p listen port")
	fs.StringVar(&f.SeedNodes, "seed-node", "", "comma-separated seed node multiaddrs")
	fs.StringVar(&f.PriorityNodes, "add-priority-node", "", "comma-separated priority peer multiaddrs")
	fs.StringVar(&f.ExclusiveNodes, "add-exclusive-node", "", "comma-separated exclusive peer multiaddrs")
	fs.StringVar(&f.BanListFile, "ban-list-file", "", "file of banned peer ids")
	fs.IntVar(&f.MaxPeers, "max-peers", 0, "maximum peer count")

	fs.BoolVar(&f.RPC, "rpc", false, "enable the rpc front-end")
	fs.StringVar(&f.RPCBind, "rpc-bind", "", "rpc bind address")
	fs.IntVar(&f.RPCPort, "rpc-port", 0, "rpc port")

	fs.StringVar(&f.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.BoolVar(&f.LogJSON, "log-json", false, "log JSON to stdout")
	fs.StringVar(&f.LogFile, "log-file", "", "also log to this file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// Apply overlays the flags onto cfg. Zero-valued flags leave the
// configuration untouched, except -p2p: its value (default true) always
// sets P2P.Enabled.
func (f *Flags) Apply(cfg *Config) {
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.CheckpointsFile != "" {
		cfg.CheckpointsFile = f.CheckpointsFile
	}
	if f.AllowDeepReorg {
		cfg.AllowDeepReorg = true
	}
	if f.EnableIndices {
		cfg.BlockchainIndicesEnabled = true
	}
	if f.NoBlobs {
		cfg.NoBlobs = true
	}

	cfg.P2P.Enabled = f.P2P
	if f.P2PBind != "" {
		cfg.P2P.ListenAddr = f.P2PBind
	}
	if f.P2PPort != 0 {
		cfg.P2P.Port = f.P2PPort
	}
	if f.MaxPeers != 0 {
		cfg.P2P.MaxPeers = f.MaxPeers
	}
	if f.SeedNodes != "" {
		cfg.P2P.SeedNodes = splitList(f.SeedNodes)
	}
	if f.PriorityNodes != "" {
		cfg.P2P.PriorityNodes = splitList(f.PriorityNodes)
	}
	if f.ExclusiveNodes != "" {
		cfg.P2P.ExclusiveNodes = splitList(f.ExclusiveNodes)
	}
	if f.BanListFile != "" {
		cfg.P2P.BanListFile = f.BanListFile
	}

	if f.RPC {
		cfg.RPC.Enabled = true
	}
	if f.RPCBind != "" {
		cfg.RPC.Addr = f.RPCBind
	}
	if f.RPCPort != 0 {
		cfg.RPC.Port = f.RPCPort
	}

	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogJSON {
		cfg.Log.JSON = true
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
