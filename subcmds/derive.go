// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bvk/marketgate/cli"
	"github.com/bvk/marketgate/config"
	"github.com/bvk/marketgate/pda"
	"github.com/bvk/marketgate/solana"
)

type Derive struct {
	envFile string

	programID string
	authority string

	mint   string
	wallet string
}

func (c *Derive) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("derive", flag.ContinueOnError)
	fset.StringVar(&c.envFile, "env-file", ".env", "name of the environment file with defaults")
	fset.StringVar(&c.programID, "program-id", "", "market program id (default is PROGRAM_ID variable)")
	fset.StringVar(&c.authority, "authority", "", "market authority public key (default is the KEYPAIR_PATH key)")
	fset.StringVar(&c.mint, "mint", "", "when set, also prints the token accounts for this mint")
	fset.StringVar(&c.wallet, "wallet", "", "owner of the associated token account (default is the authority)")
	return fset, cli.CmdFunc(c.run)
}

func (c *Derive) Synopsis() string {
	return "Prints program derived addresses of the market and its tokens"
}

func (c *Derive) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}
	if err := config.LoadEnvFile(c.envFile); err != nil {
		return err
	}

	if c.programID == "" {
		c.programID = os.Getenv("PROGRAM_ID")
	}
	programID, err := solana.ParsePublicKey(c.programID)
	if err != nil {
		return fmt.Errorf("could not parse program id %q: %w", c.programID, err)
	}

	var authority solana.PublicKey
	if c.authority != "" {
		if authority, err = solana.ParsePublicKey(c.authority); err != nil {
			return fmt.Errorf("could not parse authority %q: %w", c.authority, err)
		}
	} else {
		kp, err := solana.LoadKeypair(os.Getenv("KEYPAIR_PATH"))
		if err != nil {
			return fmt.Errorf("-authority flag or a valid KEYPAIR_PATH is required: %w", err)
		}
		authority = kp.PublicKey()
	}

	market, err := pda.Market(authority, programID)
	if err != nil {
		return err
	}
	fmt.Printf("market        %s\n", market)

	if c.mint == "" {
		return nil
	}
	mint, err := solana.ParsePublicKey(c.mint)
	if err != nil {
		return fmt.Errorf("could not parse mint %q: %w", c.mint, err)
	}
	wallet := authority
	if c.wallet != "" {
		if wallet, err = solana.ParsePublicKey(c.wallet); err != nil {
			return fmt.Errorf("could not parse wallet %q: %w", c.wallet, err)
		}
	}

	tokenData, err := pda.TokenData(mint, programID)
	if err != nil {
		return err
	}
	ata, err := pda.AssociatedToken(wallet, mint)
	if err != nil {
		return err
	}
	metadata, err := pda.Metadata(mint)
	if err != nil {
		return err
	}
	fmt.Printf("token-data    %s\n", tokenData)
	fmt.Printf("token-account %s (owner %s)\n", ata, wallet)
	fmt.Printf("metadata      %s\n", metadata)
	return nil
}
