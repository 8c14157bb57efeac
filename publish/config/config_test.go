package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wagmi-world/protocol/publish"
)

const testConfig = `
solidity: "0.8.10"
defaultNetwork: mumbai
paths:
  artifacts: build/artifacts
networks:
  mumbai:
    url: https://rpc-mumbai.example
    chainId: 80001
    accounts: ["0x1111111111111111111111111111111111111111111111111111111111111111"]
    explorerUrl: https://api-testnet.polygonscan.com/api
    gasFeeCap: 40000000000
    gasTipCap: 30000000000
  localhost:
    url: http://127.0.0.1:8545
etherscan:
  apiKey: from-file
`

func clearEnv(t *testing.T) {
	for _, key := range []string{EnvURL, EnvPrivateKey, EnvEtherscan, EnvActionID} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "wagmi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	require := require.New(t)
	clearEnv(t)

	cfg, err := Load(zaptest.NewLogger(t), viper.New(), writeConfig(t, testConfig))
	require.NoError(err)
	require.Equal("0.8.10", cfg.Solidity)
	require.Equal("mumbai", cfg.DefaultNetwork)
	require.Equal("build/artifacts", cfg.Paths.Artifacts)
	require.Equal([]string{"localhost", "mumbai"}, cfg.NetworkNames())
	require.Equal(DefaultExplorer, cfg.Etherscan.APIURL)

	target, err := cfg.Target("")
	require.NoError(err)
	require.Equal("mumbai", target.Name)
	require.Equal("https://rpc-mumbai.example", target.URL)
	require.Equal(uint64(80001), target.ChainID)
	require.Equal("https://api-testnet.polygonscan.com/api", target.ExplorerURL)
	require.Zero(big.NewInt(40_000_000_000).Cmp(target.GasFeeCap))
	require.Zero(big.NewInt(30_000_000_000).Cmp(target.GasTipCap))
	key, err := target.SignerKey()
	require.NoError(err)
	require.Equal("0x1111111111111111111111111111111111111111111111111111111111111111", key)

	local, err := cfg.Target("LocalHost")
	require.NoError(err)
	require.Equal("http://127.0.0.1:8545", local.URL)
	require.Equal(DefaultExplorer, local.ExplorerURL)
	require.Zero(big.NewInt(publish.DefaultGasFeeCap).Cmp(local.GasFeeCap))
	_, err = local.SignerKey()
	require.ErrorIs(err, publish.ErrMissingConfiguration)

	apiKey, err := cfg.ExplorerKey()
	require.NoError(err)
	require.Equal("from-file", apiKey)
}

func TestEnvironmentOverrides(t *testing.T) {
	require := require.New(t)
	clearEnv(t)
	t.Setenv(EnvURL, "https://override.example")
	t.Setenv(EnvPrivateKey, "0xfeed")
	t.Setenv(EnvEtherscan, "from-env")
	t.Setenv(EnvActionID, "wid_staging_0123")

	cfg, err := Load(zaptest.NewLogger(t), viper.New(), writeConfig(t, testConfig))
	require.NoError(err)
	require.Equal("wid_staging_0123", cfg.ActionID)

	target, err := cfg.Target("mumbai")
	require.NoError(err)
	require.Equal("https://override.example", target.URL)
	require.Equal(uint64(80001), target.ChainID)
	require.Equal([]string{"0xfeed"}, target.Accounts)

	apiKey, err := cfg.ExplorerKey()
	require.NoError(err)
	require.Equal("from-env", apiKey)
}

func TestEnvironmentOnly(t *testing.T) {
	require := require.New(t)
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load(zaptest.NewLogger(t), viper.New(), "")
	require.NoError(err)
	require.Equal(DefaultSolidity, cfg.Solidity)
	require.Equal(DefaultArtifacts, cfg.Paths.Artifacts)

	_, err = cfg.Target("")
	require.ErrorIs(err, publish.ErrMissingConfiguration)
	_, err = cfg.ExplorerKey()
	require.ErrorIs(err, publish.ErrMissingConfiguration)

	t.Setenv(EnvURL, "http://127.0.0.1:8545")
	t.Setenv(EnvPrivateKey, "abc")
	cfg, err = Load(zaptest.NewLogger(t), viper.New(), "")
	require.NoError(err)
	target, err := cfg.Target("")
	require.NoError(err)
	require.Equal(DefaultNetwork, target.Name)
	require.Equal("http://127.0.0.1:8545", target.URL)
	require.Zero(target.ChainID)
}

func TestLoadErrors(t *testing.T) {
	require := require.New(t)
	clearEnv(t)

	_, err := Load(zaptest.NewLogger(t), viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(err)

	_, err = Load(zaptest.NewLogger(t), viper.New(), writeConfig(t, "networks: [broken"))
	require.Error(err)

	cfg, err := Load(zaptest.NewLogger(t), viper.New(), writeConfig(t, `
networks:
  bad:
    url: http://127.0.0.1:8545
    gasFeeCap: 1
    gasTipCap: 2
`))
	require.NoError(err)
	_, err = cfg.Target("bad")
	require.ErrorIs(err, publish.ErrMissingConfiguration)
	_, err = cfg.Target("unknown")
	require.ErrorIs(err, publish.ErrMissingConfiguration)
}

func TestLoadEnvFile(t *testing.T) {
	require := require.New(t)
	const fromFile, preset = "WAGMI_TEST_DOTENV_ONLY", "WAGMI_TEST_DOTENV_PRESET"
	t.Setenv(preset, "process")
	t.Cleanup(func() { _ = os.Unsetenv(fromFile) })

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(os.WriteFile(path, []byte(fromFile+"=dotenv\n"+preset+"=dotenv\n"), 0o600))

	require.NoError(LoadEnvFile(zaptest.NewLogger(t), path))
	require.Equal("dotenv", os.Getenv(fromFile))
	require.Equal("process", os.Getenv(preset))

	require.NoError(LoadEnvFile(zaptest.NewLogger(t), filepath.Join(t.TempDir(), "absent.env")))
	require.NoError(LoadEnvFile(zaptest.NewLogger(t), ""))
}
