// Command wallet manages local keypair files and moves devnet SOL around.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Abrham-amplitude/solana-ticket/internal/config"
	"github.com/Abrham-amplitude/solana-ticket/internal/ledger"
	"github.com/Abrham-amplitude/solana-ticket/internal/services"
	"github.com/Abrham-amplitude/solana-ticket/utils"
)

const usage = `Usage: wallet [--config FILE] [--rpc URL] <command> [flags]

Commands:
  new        generate a keypair and write a wallet file
  convert    re-encode a secret between hex and base58
  address    print the address of a wallet file
  balance    print the balance of a wallet or address
  airdrop    request devnet SOL, retrying until a target balance
  transfer   send SOL from a wallet file
`

type command func(ctx context.Context, c *cli, args []string) error

var commands = map[string]command{
	"new":      cmdNew,
	"convert":  cmdConvert,
	"address":  cmdAddress,
	"balance":  cmdBalance,
	"airdrop":  cmdAirdrop,
	"transfer": cmdTransfer,
}

// cli carries what every subcommand needs. engine is built lazily so offline
// commands never touch the network.
type cli struct {
	out    io.Writer
	log    *utils.Logger
	engine func() (*services.Engine, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	flagSet := pflag.NewFlagSet("wallet", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	configPath := flagSet.StringP("config", "c", "", "config file (same as the server)")
	rpcURL := flagSet.String("rpc", "", "RPC endpoint, overrides solana.rpc_url")
	logLevel := flagSet.String("log-level", "warn", "debug, info, warn or error")
	flagSet.Usage = func() { fmt.Fprint(out, usage) }
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		fmt.Fprint(out, usage)
		return fmt.Errorf("missing command")
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}

	log := utils.NewLogger("wallet", *logLevel)
	c := &cli{out: out, log: log}
	c.engine = func() (*services.Engine, error) {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		if *rpcURL != "" {
			cfg.Solana.RPCURL = *rpcURL
		}
		client := ledger.NewClient(cfg.Solana.RPCURL, cfg.LedgerOptions(), log)
		return services.NewEngine(client, cfg.EngineConfig(), services.WithLogger(log)), nil
	}
	if err := cmd(ctx, c, rest[1:]); err != nil && !errors.Is(err, pflag.ErrHelp) {
		return err
	}
	return nil
}
