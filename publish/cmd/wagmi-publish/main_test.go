package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/wagmi-world/protocol/publish"
	"github.com/wagmi-world/protocol/publish/internal/evmtest"
)

var successLine = regexp.MustCompile(`^Wagmi deployed to 0x[0-9a-fA-F]{40}\n$`)

type harness struct {
	node      *evmtest.Node
	fs        afero.Fs
	artifacts string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		node:      evmtest.NewNode(),
		fs:        afero.NewOsFs(),
		artifacts: filepath.Join(t.TempDir(), "artifacts"),
	}
	evmtest.WriteWagmi(t, h.fs, h.artifacts)

	t.Setenv("URL", h.node.URL(t))
	t.Setenv("PRIVATE_KEY", "0x"+evmtest.DeployerKey)
	t.Setenv("ACTION_ID", "wid_staging_0123")
	t.Setenv("ETHERSCAN", "")
	return h
}

func (h *harness) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	base := []string{"--env-file", "", "--artifacts", h.artifacts}
	code := run(context.Background(), append(append([]string{}, args[:1]...), append(base, args[1:]...)...), &stdout, &stderr, h.fs)
	return code, stdout.String(), stderr.String()
}

func TestDeploySucceeds(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	code, stdout, stderr := h.run("deploy", "--poll-interval", "10ms")
	require.Equal(0, code, stderr)
	require.Regexp(successLine, stdout)
	require.Empty(stderr)

	deployer := common.HexToAddress(evmtest.DeployerAddress)
	require.Equal("Wagmi deployed to "+crypto.CreateAddress(deployer, 0).Hex()+"\n", stdout)

	txs := h.node.Transactions()
	require.Len(txs, 1)
	require.Nil(txs[0].To())
}

func TestDeployPassesFixedConstructorArgs(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	t.Setenv("ACTION_ID", "wid_e2e_42")

	code, _, stderr := h.run("deploy", "--poll-interval", "10ms")
	require.Equal(0, code, stderr)

	data := h.node.Transactions()[0].Data()
	code0 := common.FromHex(evmtest.WagmiBytecode)
	require.Equal(code0, data[:len(code0)])

	addrWord := data[len(code0) : len(code0)+32]
	groupWord := data[len(code0)+32 : len(code0)+64]
	require.Equal(common.HexToAddress("0xABB70f7F39035586Da57B3c8136035f87AC0d2Aa"), common.BytesToAddress(addrWord))
	require.Equal(common.LeftPadBytes([]byte{1}, 32), groupWord)
	require.Contains(string(data[len(code0)+64:]), "wid_e2e_42")
}

func TestDeployWithoutActionIDFailsBeforeNetwork(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	t.Setenv("ACTION_ID", "")

	code, stdout, stderr := h.run("deploy")
	require.Equal(1, code)
	require.Empty(stdout)
	require.Contains(stderr, "ACTION_ID")
	require.Zero(h.node.Requests())
}

func TestDeployFailuresExitOne(t *testing.T) {
	tests := []struct {
		desc  string
		setup func(h *harness, t *testing.T)
		want  string
	}{
		{
			desc:  "missing artifact",
			setup: func(h *harness, t *testing.T) { require.NoError(t, os.RemoveAll(h.artifacts)) },
			want:  "artifact not found",
		},
		{
			desc:  "constructor reverts",
			setup: func(h *harness, _ *testing.T) { h.node.EstimateErr = errors.New("execution reverted") },
			want:  "execution reverted",
		},
		{
			desc:  "insufficient funds",
			setup: func(h *harness, _ *testing.T) { h.node.SendErr = errors.New("insufficient funds for gas * price + value") },
			want:  "insufficient funds",
		},
		{
			desc:  "reverted on chain",
			setup: func(h *harness, _ *testing.T) { h.node.ReceiptFail = true },
			want:  "execution reverted",
		},
		{
			desc:  "receipt lookup fails",
			setup: func(h *harness, _ *testing.T) { h.node.ReceiptErr = errors.New("upstream connection reset") },
			want:  "network error",
		},
		{
			desc:  "unreachable node",
			setup: func(_ *harness, t *testing.T) { t.Setenv("URL", "http://127.0.0.1:1") },
			want:  "network error",
		},
		{
			desc:  "invalid key",
			setup: func(_ *harness, t *testing.T) { t.Setenv("PRIVATE_KEY", "0x1234") },
			want:  "missing configuration",
		},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			require := require.New(t)
			h := newHarness(t)
			tt.setup(h, t)

			code, stdout, stderr := h.run("deploy", "--poll-interval", "10ms")
			require.Equal(1, code)
			require.Empty(stdout)
			require.Contains(stderr, "error: ")
			require.Contains(stderr, tt.want)
		})
	}
}

func TestDeployTwiceGivesTwoAddresses(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	code, first, stderr := h.run("deploy", "--poll-interval", "10ms")
	require.Equal(0, code, stderr)
	code, second, stderr := h.run("deploy", "--poll-interval", "10ms")
	require.Equal(0, code, stderr)

	require.Regexp(successLine, first)
	require.Regexp(successLine, second)
	require.NotEqual(first, second)
}

func TestDeployWritesRecord(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	dir := t.TempDir()

	code, stdout, stderr := h.run("deploy", "--poll-interval", "10ms", "--record-dir", dir, "--network", "localhost")
	require.Equal(0, code, stderr)

	blob, err := os.ReadFile(filepath.Join(dir, "localhost", "WAGMI.json"))
	require.NoError(err)
	var rec publish.Record
	require.NoError(json.Unmarshal(blob, &rec))
	require.Equal("contracts/WAGMI.sol:WAGMI", rec.Contract)
	require.Equal(h.node.ChainID, rec.ChainID)
	require.Equal("Wagmi deployed to "+rec.Address+"\n", stdout)
	require.Equal(common.HexToAddress(evmtest.DeployerAddress).Hex(), rec.Deployer)
}

func TestDeployUsesConfigFile(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	nodeURL := os.Getenv("URL")
	t.Setenv("URL", "")

	cfgPath := filepath.Join(t.TempDir(), "wagmi.yaml")
	require.NoError(os.WriteFile(cfgPath, []byte(`
solidity: "0.8.10"
defaultNetwork: dev
networks:
  dev:
    url: `+nodeURL+`
    chainId: 31337
    gasLimit: 900000
`), 0o600))

	code, stdout, stderr := h.run("deploy", "--config", cfgPath, "--poll-interval", "10ms")
	require.Equal(0, code, stderr)
	require.Regexp(successLine, stdout)
	require.Equal(uint64(900_000), h.node.Transactions()[0].Gas())
}

func TestVerify(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	t.Setenv("ETHERSCAN", "test-key")

	forms := make(chan map[string][]string, 1)
	explorerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch r.Form.Get("action") {
		case "verifysourcecode":
			forms <- r.PostForm
			_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":"guid-1"}`))
		case "checkverifystatus":
			_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":"Pass - Verified"}`))
		}
	}))
	defer explorerSrv.Close()

	cfgPath := filepath.Join(t.TempDir(), "wagmi.yaml")
	require.NoError(os.WriteFile(cfgPath, []byte("etherscan:\n  apiUrl: "+explorerSrv.URL+"\n"), 0o600))

	addr := "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	code, stdout, stderr := h.run("verify", "--config", cfgPath, "--address", addr, "--poll-interval", "5ms")
	require.Equal(0, code, stderr)
	require.Equal("Wagmi verified at "+addr+"\n", stdout)
	form := <-forms
	require.Equal("contracts/WAGMI.sol:WAGMI", form["contractname"][0])
	require.Equal("v0.8.10+commit.fc410830", form["compilerversion"][0])
	require.NotEmpty(form["constructorArguements"][0])
	require.Zero(h.node.Requests())
}

func TestVerifyRequiresAPIKey(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	code, stdout, stderr := h.run("verify", "--address", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	require.Equal(1, code)
	require.Empty(stdout)
	require.Contains(stderr, "ETHERSCAN")
}

func TestVerifyNonPositivePollInterval(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	t.Setenv("ETHERSCAN", "test-key")

	var polls atomic.Int32
	explorerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch r.Form.Get("action") {
		case "verifysourcecode":
			_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":"guid-1"}`))
		case "checkverifystatus":
			polls.Add(1)
			_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":"Pass - Verified"}`))
		}
	}))
	defer explorerSrv.Close()

	cfgPath := filepath.Join(t.TempDir(), "wagmi.yaml")
	require.NoError(os.WriteFile(cfgPath, []byte("etherscan:\n  apiUrl: "+explorerSrv.URL+"\n"), 0o600))

	addr := "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	for _, interval := range []string{"0s", "-1s"} {
		code, stdout, stderr := h.run("verify", "--config", cfgPath, "--address", addr, "--poll-interval="+interval)
		require.Equal(0, code, stderr)
		require.Equal("Wagmi verified at "+addr+"\n", stdout)
	}
	require.Equal(int32(2), polls.Load())
}

func TestDeployQualifiedContractName(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	code, stdout, stderr := h.run("deploy", "--contract", evmtest.WagmiSource+":WAGMI", "--poll-interval", "10ms")
	require.Equal(0, code, stderr)
	require.Regexp(successLine, stdout)

	code, stdout, stderr = h.run("deploy", "--contract", "contracts/Other.sol:WAGMI")
	require.Equal(1, code)
	require.Empty(stdout)
	require.Contains(stderr, "artifact not found")
}
