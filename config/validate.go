package config

import (
	"fmt"
)

// Validate checks the configuration for inconsistencies before the node
// starts. It returns the first problem found.
func (c *Config) Validate() error {
	switch c.Network {
	case Mainnet, Testnet:
	default:
		return fmt.Errorf("unknown network %q", c.Network)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}

	if c.P2P.Enabled {
		if c.P2P.Port <= 0 || c.P2P.Port > 65535 {
			return fmt.Errorf("p2p port %d out of range", c.P2P.Port)
		}
		if c.P2P.MaxPeers <= 0 {
			return fmt.Errorf("p2p max_peers must be positive")
		}
		if len(c.P2P.ExclusiveNodes) > 0 && len(c.P2P.PriorityNodes) > 0 {
			return fmt.Errorf("exclusive_nodes and priority_nodes are mutually exclusive")
		}
	}

	if c.RPC.Enabled {
		if c.RPC.Port <= 0 || c.RPC.Port > 65535 {
			return fmt.Errorf("rpc port %d out of range", c.RPC.Port)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	return nil
}
