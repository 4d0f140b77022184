package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/pflag"

	"github.com/Abrham-amplitude/solana-ticket/internal/keys"
	"github.com/Abrham-amplitude/solana-ticket/utils"
)

const (
	defaultWallet   = "wallet.json"
	defaultAttempts = 5
	defaultDelay    = 2 * time.Second
)

func flags(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

func cmdNew(_ context.Context, c *cli, args []string) error {
	fs := flags("new")
	out := fs.StringP("out", "o", defaultWallet, "wallet file to write")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		return fmt.Errorf("%s already exists, use --force to overwrite", *out)
	}

	k := keys.Generate()
	if err := keys.SaveWallet(*out, k); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "address: %s\nwallet:  %s\n", k.PublicAddress(), *out)
	return nil
}

func cmdConvert(_ context.Context, c *cli, args []string) error {
	fs := flags("convert")
	from := fs.String("from", "hex", "encoding of the input secret")
	to := fs.String("to", "base58", "encoding to print")
	wallet := fs.StringP("wallet", "w", "", "read the secret from a wallet file instead")
	if err := fs.Parse(args); err != nil {
		return err
	}
	toEnc, err := keys.ParseEncoding(*to)
	if err != nil {
		return err
	}

	var k keys.Keypair
	switch {
	case *wallet != "":
		if k, err = keys.LoadWallet(*wallet); err != nil {
			return err
		}
	case fs.NArg() == 1:
		fromEnc, err := keys.ParseEncoding(*from)
		if err != nil {
			return err
		}
		if k, err = keys.Import(fs.Arg(0), fromEnc); err != nil {
			return err
		}
	default:
		return errors.New("convert takes one secret argument or --wallet")
	}
	fmt.Fprintf(c.out, "address: %s\n%s: %s\n", k.PublicAddress(), toEnc, keys.Export(k, toEnc))
	return nil
}

func cmdAddress(_ context.Context, c *cli, args []string) error {
	fs := flags("address")
	wallet := fs.StringP("wallet", "w", defaultWallet, "wallet file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	k, err := keys.LoadWallet(*wallet)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, k.PublicAddress())
	return nil
}

// target 解析地址：优先使用参数，否则读取钱包文件
func target(fs *pflag.FlagSet, wallet string) (solana.PublicKey, error) {
	if fs.NArg() > 0 {
		return solana.PublicKeyFromBase58(fs.Arg(0))
	}
	k, err := keys.LoadWallet(wallet)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return k.PublicAddress(), nil
}

func cmdBalance(ctx context.Context, c *cli, args []string) error {
	fs := flags("balance")
	wallet := fs.StringP("wallet", "w", defaultWallet, "wallet file, when no address is given")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := target(fs, *wallet)
	if err != nil {
		return err
	}
	e, err := c.engine()
	if err != nil {
		return err
	}
	bal, err := e.Balance(ctx, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s (%d lamports)\n", utils.FormatSOL(bal), bal)
	return nil
}

func cmdAirdrop(ctx context.Context, c *cli, args []string) error {
	fs := flags("airdrop")
	wallet := fs.StringP("wallet", "w", defaultWallet, "wallet file, when no address is given")
	amount := fs.String("sol", "1", "SOL per request")
	goal := fs.String("target", "", "keep requesting until the balance reaches this many SOL")
	attempts := fs.Int("attempts", defaultAttempts, "maximum faucet requests")
	delay := fs.Duration("delay", defaultDelay, "wait between failed requests")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := target(fs, *wallet)
	if err != nil {
		return err
	}
	lamports, err := utils.ParseSOL(*amount)
	if err != nil {
		return err
	}
	var want uint64
	if *goal != "" {
		if want, err = utils.ParseSOL(*goal); err != nil {
			return err
		}
	}

	e, err := c.engine()
	if err != nil {
		return err
	}
	f := faucet{engine: e, log: c.log, attempts: *attempts, delay: *delay}
	bal, err := f.fund(ctx, addr, lamports, want)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s balance: %s\n", addr, utils.FormatSOL(bal))
	return nil
}

func cmdTransfer(ctx context.Context, c *cli, args []string) error {
	fs := flags("transfer")
	wallet := fs.StringP("wallet", "w", defaultWallet, "sender wallet file")
	to := fs.String("to", "", "recipient address")
	sol := fs.String("sol", "", "amount in SOL")
	lamports := fs.Uint64("lamports", 0, "amount in lamports")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*sol == "") == (*lamports == 0) {
		return errors.New("give exactly one of --sol or --lamports")
	}
	amount := *lamports
	if *sol != "" {
		v, err := utils.ParseSOL(*sol)
		if err != nil {
			return err
		}
		amount = v
	}
	recipient, err := solana.PublicKeyFromBase58(*to)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}
	from, err := keys.LoadWallet(*wallet)
	if err != nil {
		return err
	}

	e, err := c.engine()
	if err != nil {
		return err
	}
	res, err := e.Transfer(ctx, from, recipient, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "sent %s to %s\nsignature: %s\n", utils.FormatSOL(res.Lamports), res.To, res.TransactionID)
	return nil
}
