// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/bvk/marketgate/api"
	"github.com/bvk/marketgate/cli"
	"github.com/bvk/marketgate/subcmds/cmdutil"
)

type Unlist struct {
	cmdutil.ClientFlags
}

func (c *Unlist) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("unlist", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return fset, cli.CmdFunc(c.run)
}

func (c *Unlist) Synopsis() string {
	return "Removes expired tokens from the market listing"
}

func (c *Unlist) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}
	resp, err := cmdutil.Post[api.TxResponse](ctx, &c.ClientFlags, api.UnlistPath, &api.UnlistRequest{})
	if err != nil {
		return err
	}
	fmt.Println(resp.Tx)
	return nil
}

type Initialize struct {
	cmdutil.ClientFlags

	feeRate   uint64
	maxTokens uint64
}

func (c *Initialize) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("initialize", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	fset.Uint64Var(&c.feeRate, "fee-rate", api.DefaultFeeRate, "trade fee rate in basis points")
	fset.Uint64Var(&c.maxTokens, "max-tokens", api.DefaultMaxTokens, "maximum number of listed tokens")
	return fset, cli.CmdFunc(c.run)
}

func (c *Initialize) Synopsis() string {
	return "Creates the market account owned by the gateway authority"
}

func (c *Initialize) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}
	req := &api.InitializeRequest{
		FeeRate:   api.NewNumber(c.feeRate),
		MaxTokens: api.NewNumber(c.maxTokens),
	}
	if err := req.Check(); err != nil {
		return err
	}
	resp, err := cmdutil.Post[api.TxResponse](ctx, &c.ClientFlags, api.InitializePath, req)
	if err != nil {
		return err
	}
	fmt.Println(resp.Tx)
	return nil
}

type Status struct {
	cmdutil.ClientFlags
}

func (c *Status) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("status", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return fset, cli.CmdFunc(c.run)
}

func (c *Status) Synopsis() string {
	return "Checks that the gateway is up"
}

func (c *Status) run(ctx context.Context, args []string) error {
	resp, err := cmdutil.Get[api.HealthResponse](ctx, &c.ClientFlags, api.HealthPath, nil)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("gateway is not healthy: %s", resp.Message)
	}
	fmt.Printf("%s (%s)\n", resp.Message, time.UnixMilli(resp.Timestamp).Format(time.RFC3339))
	return nil
}
