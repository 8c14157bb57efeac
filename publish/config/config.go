// Package config loads the toolkit configuration: compiler version, named
// networks with their signer keys, and the block explorer credentials.
// Values come from an optional wagmi.{yaml,json,toml} file, a .env file and
// the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wagmi-world/protocol/publish"
)

const (
	DefaultConfigName = "wagmi"
	DefaultEnvFile    = ".env"
	DefaultNetwork    = "default"
	DefaultSolidity   = "0.8.10"
	DefaultArtifacts  = "artifacts"
	DefaultExplorer   = "https://api.etherscan.io/api"

	EnvURL        = "URL"
	EnvPrivateKey = "PRIVATE_KEY"
	EnvEtherscan  = "ETHERSCAN"
	EnvActionID   = "ACTION_ID"
)

type (
	Network struct {
		URL         string   `mapstructure:"url"`
		ChainID     uint64   `mapstructure:"chainid"`
		Accounts    []string `mapstructure:"accounts"`
		ExplorerURL string   `mapstructure:"explorerurl"`
		GasFeeCap   int64    `mapstructure:"gasfeecap"`
		GasTipCap   int64    `mapstructure:"gastipcap"`
		GasLimit    uint64   `mapstructure:"gaslimit"`
	}

	Etherscan struct {
		APIKey string `mapstructure:"apikey"`
		APIURL string `mapstructure:"apiurl"`
	}

	Paths struct {
		Artifacts string `mapstructure:"artifacts"`
	}

	Config struct {
		Solidity       string             `mapstructure:"solidity"`
		DefaultNetwork string             `mapstructure:"defaultnetwork"`
		Networks       map[string]Network `mapstructure:"networks"`
		Etherscan      Etherscan          `mapstructure:"etherscan"`
		Paths          Paths              `mapstructure:"paths"`

		// Environment overlays.
		URL        string `mapstructure:"url"`
		PrivateKey string `mapstructure:"privatekey"`
		ActionID   string `mapstructure:"actionid"`
	}

	// Target is a fully resolved network entry.
	Target struct {
		Name        string
		URL         string
		ChainID     uint64
		Accounts    []string
		ExplorerURL string
		GasFeeCap   *big.Int
		GasTipCap   *big.Int
		GasLimit    uint64
	}
)

// LoadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnvFile(log *zap.Logger, path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("no env file", zap.String("env-file", path))
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	log.Debug("loaded env file", zap.String("env-file", path))
	return nil
}

// Load reads configuration into v. An empty path searches the working
// directory for wagmi.{yaml,json,toml}; not finding one is fine.
func Load(log *zap.Logger, v *viper.Viper, path string) (*Config, error) {
	v.SetDefault("solidity", DefaultSolidity)
	v.SetDefault("defaultNetwork", DefaultNetwork)
	v.SetDefault("paths.artifacts", DefaultArtifacts)
	v.SetDefault("etherscan.apiUrl", DefaultExplorer)

	for key, env := range map[string]string{
		"url":              EnvURL,
		"privateKey":       EnvPrivateKey,
		"actionId":         EnvActionID,
		"etherscan.apiKey": EnvEtherscan,
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Debug("no config file found, using defaults and environment")
	} else {
		log.Info("using config file", zap.String("config-file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Networks == nil {
		cfg.Networks = map[string]Network{}
	}
	return &cfg, nil
}

// Target resolves a network by name, or DefaultNetwork when name is empty.
// URL and PRIVATE_KEY from the environment override the file entry, and a
// network absent from the file exists when URL is set.
func (c *Config) Target(name string) (Target, error) {
	if name == "" {
		name = c.DefaultNetwork
	}
	name = strings.ToLower(name)

	n, ok := c.Networks[name]
	if !ok && c.URL == "" {
		return Target{}, fmt.Errorf("%w: network %q is not configured (known: %s) and %s is not set",
			publish.ErrMissingConfiguration, name, strings.Join(c.NetworkNames(), ", "), EnvURL)
	}
	if c.URL != "" {
		n.URL = c.URL
	}
	if c.PrivateKey != "" {
		n.Accounts = []string{c.PrivateKey}
	}
	if strings.TrimSpace(n.URL) == "" {
		return Target{}, fmt.Errorf("%w: network %q has no url", publish.ErrMissingConfiguration, name)
	}

	t := Target{
		Name:        name,
		URL:         n.URL,
		ChainID:     n.ChainID,
		Accounts:    n.Accounts,
		ExplorerURL: n.ExplorerURL,
		GasFeeCap:   big.NewInt(publish.DefaultGasFeeCap),
		GasTipCap:   big.NewInt(publish.DefaultGasTipCap),
		GasLimit:    n.GasLimit,
	}
	if n.GasFeeCap > 0 {
		t.GasFeeCap = big.NewInt(n.GasFeeCap)
	}
	if n.GasTipCap > 0 {
		t.GasTipCap = big.NewInt(n.GasTipCap)
	}
	if t.ExplorerURL == "" {
		t.ExplorerURL = c.Etherscan.APIURL
	}
	if t.GasTipCap.Cmp(t.GasFeeCap) > 0 {
		return Target{}, fmt.Errorf("%w: network %q gas tip cap %s exceeds fee cap %s",
			publish.ErrMissingConfiguration, name, t.GasTipCap, t.GasFeeCap)
	}
	return t, nil
}

// SignerKey is the first configured account for the target.
func (t Target) SignerKey() (string, error) {
	for _, acct := range t.Accounts {
		if strings.TrimSpace(acct) != "" {
			return acct, nil
		}
	}
	return "", fmt.Errorf("%w: no signer account for network %q (set %s)", publish.ErrMissingConfiguration, t.Name, EnvPrivateKey)
}

// DeployerOptions fills base with the target's chain id and gas settings.
func (t Target) DeployerOptions(base publish.Options) publish.Options {
	opts := base
	opts.ChainID = t.ChainID
	opts.GasFeeCap = t.GasFeeCap
	opts.GasTipCap = t.GasTipCap
	opts.GasLimit = t.GasLimit
	return opts
}

func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExplorerKey returns the block explorer API key.
func (c *Config) ExplorerKey() (string, error) {
	if strings.TrimSpace(c.Etherscan.APIKey) == "" {
		return "", fmt.Errorf("%w: explorer api key is not set (%s)", publish.ErrMissingConfiguration, EnvEtherscan)
	}
	return c.Etherscan.APIKey, nil
}
