package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/wagmi-world/protocol/publish"
	"github.com/wagmi-world/protocol/publish/contracts/wagmi"
	"github.com/wagmi-world/protocol/publish/explorer"
)

type verifyFlags struct {
	address      string
	wait         bool
	pollInterval time.Duration
}

// wagmi-publish verify
func newVerifyCmd(a *app) *cobra.Command {
	var f verifyFlags
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a deployed WAGMI source on the block explorer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.verify(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&f.address, "address", "", "deployed WAGMI address")
	cmd.Flags().BoolVar(&f.wait, "wait", true, "poll the explorer until verification finishes")
	cmd.Flags().DurationVar(&f.pollInterval, "poll-interval", explorer.DefaultPollInterval, "verification status polling interval")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func (a *app) verify(ctx context.Context, out io.Writer, f verifyFlags) error {
	addr, err := publish.ParseAddress(f.address)
	if err != nil {
		return err
	}
	args, err := wagmi.NewConstructorArgs(a.cfg.ActionID)
	if err != nil {
		return err
	}
	target, err := a.cfg.Target(a.flags.network)
	if err != nil {
		return err
	}
	apiKey, err := a.cfg.ExplorerKey()
	if err != nil {
		return err
	}

	registry := a.registry()
	art, err := registry.Lookup(wagmi.Name())
	if err != nil {
		return err
	}
	info, err := registry.BuildInfo(art)
	if err != nil {
		return err
	}
	encoded, err := art.EncodeConstructorArgs(args.Values()...)
	if err != nil {
		return err
	}

	client := explorer.NewClient(target.ExplorerURL, apiKey, a.log).WithPollInterval(f.pollInterval)
	guid, err := client.Verify(ctx, explorer.Submission{
		Address:         addr,
		ContractName:    art.FullyQualifiedName(),
		CompilerVersion: info.SolcLongVersion,
		StandardInput:   info.Input,
		ConstructorArgs: encoded,
	})
	if err != nil {
		return err
	}
	if guid == "" {
		fmt.Fprintf(out, "%s at %s is already verified\n", wagmi.DisplayName(), addr.Hex())
		return nil
	}
	if !f.wait {
		fmt.Fprintf(out, "Verification of %s submitted: %s\n", addr.Hex(), guid)
		return nil
	}
	if _, err := client.Wait(ctx, guid); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s verified at %s\n", wagmi.DisplayName(), addr.Hex())
	return nil
}
