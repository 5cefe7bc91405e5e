// Command mevanetd runs the Mevanet node: the blockchain core plus the
// network adapter.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mevanet/mevanet-chain/config"
	"github.com/mevanet/mevanet-chain/internal/log"
	"github.com/mevanet/mevanet-chain/internal/node"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags, err := config.ParseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if flags.Help {
		fmt.Println("usage: mevanetd [flags]; see -h for the flag list")
		return 0
	}
	if flags.Version {
		fmt.Println("mevanetd", version)
		return 0
	}

	var cfg *config.Config
	switch config.NetworkType(flags.Network) {
	case config.Testnet:
		cfg = config.DefaultTestnet()
	default:
		cfg = config.DefaultMainnet()
	}

	if flags.Config != "" {
		cfg, err = config.Load(flags.Config, cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	flags.Apply(cfg)

	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fmt.Fprintln(os.Stderr, "init logging:", err)
		return 1
	}

	n, err := node.New(cfg)
	if err != nil {
		log.Node.Error().Err(err).Msg("node initialization failed")
		return 1
	}
	defer n.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := n.Run(ctx); err != nil {
		log.Node.Error().Err(err).Msg("node stopped with error")
		return 1
	}
	log.Node.Info().Msg("node stopped")
	return 0
}
