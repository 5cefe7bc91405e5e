package config

// DefaultMainnet returns the default node configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		P2P: P2PConfig{
			Enabled:    true,
			ListenAddr: "0.0.0.0",
			Port:       32347,
			MaxPeers:   50,
			SeedNodes:  []string{},
		},
		RPC: RPCConfig{
			Enabled: false,
			Addr:    "127.0.0.1",
			Port:    32348,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultTestnet returns the default node configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.DataDir = cfg.DataDir + "-testnet"
	cfg.P2P.Port = 33347
	cfg.RPC.Port = 33348
	return cfg
}

// IsTestnet reports whether the configuration targets testnet.
func (c *Config) IsTestnet() bool {
	return c.Network == Testnet
}
