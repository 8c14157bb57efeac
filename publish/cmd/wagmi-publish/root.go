package main

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wagmi-world/protocol/publish/artifacts"
	"github.com/wagmi-world/protocol/publish/config"
)

type (
	globalFlags struct {
		configFile string
		envFile    string
		network    string
		artifacts  string
		logLevel   string
	}

	app struct {
		flags  globalFlags
		stdout io.Writer
		stderr io.Writer
		fs     afero.Fs
		log    *zap.Logger
		cfg    *config.Config
	}
)

func newRootCmd(stdout, stderr io.Writer, fs afero.Fs) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, fs: fs, log: zap.NewNop()}

	cmd := &cobra.Command{
		Use:           "wagmi-publish",
		Short:         "Deploy and verify the WAGMI contract",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.log.Sync()
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.flags.configFile, "config", "", "config file (default ./wagmi.{yaml,json,toml})")
	pf.StringVar(&a.flags.envFile, "env-file", config.DefaultEnvFile, "dotenv file loaded before reading the environment")
	pf.StringVar(&a.flags.network, "network", "", "network name from the config (default: defaultNetwork)")
	pf.StringVar(&a.flags.artifacts, "artifacts", "", "Hardhat artifacts directory (default: paths.artifacts)")
	pf.StringVar(&a.flags.logLevel, "log-level", "warn", "debug|info|warn|error, written to stderr")

	cmd.AddCommand(newDeployCmd(a), newVerifyCmd(a))
	return cmd
}

func (a *app) setup() error {
	log, err := newLogger(a.stderr, a.flags.logLevel)
	if err != nil {
		return err
	}
	a.log = log

	if err := config.LoadEnvFile(a.log, a.flags.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.log, viper.New(), a.flags.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) registry() *artifacts.Registry {
	dir := a.flags.artifacts
	if dir == "" {
		dir = a.cfg.Paths.Artifacts
	}
	return artifacts.NewRegistry(a.fs, dir, a.log)
}

func newLogger(w io.Writer, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log-level: %w", err)
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}
