package main

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wagmi-world/protocol/publish"
	"github.com/wagmi-world/protocol/publish/artifacts"
	"github.com/wagmi-world/protocol/publish/contracts/wagmi"
)

type deployFlags struct {
	contract       string
	submitTimeout  time.Duration
	confirmTimeout time.Duration
	pollInterval   time.Duration
	recordDir      string
}

// wagmi-publish deploy
func newDeployCmd(a *app) *cobra.Command {
	var f deployFlags
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy WAGMI and print its address",
		Long: `Deploy WAGMI with constructor arguments (World ID router, group 1, $ACTION_ID)
to the selected network, wait for the receipt and print the contract address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.deploy(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&f.contract, "contract", wagmi.Name(), "artifact name or <source>:<name> to deploy")
	cmd.Flags().DurationVar(&f.submitTimeout, "submit-timeout", 0, "bound on submitting the transaction (0 waits indefinitely)")
	cmd.Flags().DurationVar(&f.confirmTimeout, "confirm-timeout", 0, "bound on waiting for the receipt (0 waits indefinitely)")
	cmd.Flags().DurationVar(&f.pollInterval, "poll-interval", publish.DefaultPollInterval, "receipt polling interval")
	cmd.Flags().StringVar(&f.recordDir, "record-dir", "", "write a JSON deployment record under this directory")
	return cmd
}

func (a *app) deploy(ctx context.Context, out io.Writer, f deployFlags) error {
	args, err := wagmi.NewConstructorArgs(a.cfg.ActionID)
	if err != nil {
		return err
	}
	target, err := a.cfg.Target(a.flags.network)
	if err != nil {
		return err
	}
	key, err := target.SignerKey()
	if err != nil {
		return err
	}
	req, err := wagmi.Request(args, key, target.Name, target.URL, target.ChainID)
	if err != nil {
		return err
	}
	if f.contract != "" {
		req.ContractName = f.contract
	}

	registry := a.registry()
	runner := &publish.Runner{
		Resolver: registry,
		Dial:     publish.DialDeployer(target.DeployerOptions(publish.Options{PollInterval: f.pollInterval}), a.log),
		Out:      out,
		Log:      a.log,
		Check: func(art *artifacts.Artifact) error {
			return a.checkArtifact(registry, art)
		},
		SubmitTimeout:  f.submitTimeout,
		ConfirmTimeout: f.confirmTimeout,
	}

	d, err := runner.Run(ctx, req)
	if err != nil {
		return err
	}

	if f.recordDir != "" {
		path, err := publish.WriteRecord(a.fs, f.recordDir, d)
		if err != nil {
			return err
		}
		a.log.Info("deployment recorded", zap.String("path", path))
	}
	return nil
}

// checkArtifact rejects a WAGMI build whose constructor does not match the
// arguments we send. A compiler version drift is only reported.
func (a *app) checkArtifact(registry *artifacts.Registry, art *artifacts.Artifact) error {
	parsed, err := art.ParsedABI()
	if err != nil {
		return err
	}
	if err := wagmi.CheckABI(parsed); err != nil {
		return err
	}

	err = registry.CheckCompiler(art, a.cfg.Solidity)
	switch {
	case err == nil:
	case errors.Is(err, artifacts.ErrSolcMismatch), errors.Is(err, artifacts.ErrNoBuildInfo):
		a.log.Warn("compiler check skipped or failed", zap.String("contract", art.FullyQualifiedName()), zap.Error(err))
	default:
		return err
	}
	return nil
}
