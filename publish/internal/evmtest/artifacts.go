// Package evmtest holds fixtures shared by the publish tests: a Hardhat
// artifact tree for WAGMI and an in-memory JSON-RPC node.
package evmtest

import (
	"encoding/json"
	"path"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const (
	WagmiSource  = "contracts/WAGMI.sol"
	WagmiBuildID = "6c1f0e8b4a3d2c9e7f5a1b0d8c6e4f2a"
	SolcVersion  = "0.8.10"

	// WagmiBytecode is a stand-in creation code; the fake node never executes it.
	WagmiBytecode = "0x608060405234801561001057600080fd5b50604051610400380380610400833981016040819052610030916100a0565b600080546001600160a01b0319166001600160a01b0394909416939093179092556001555b50565b"

	WagmiABI = `[
  {
    "inputs": [
      {"internalType": "contract IWorldID", "name": "_worldId", "type": "address"},
      {"internalType": "uint256", "name": "_groupId", "type": "uint256"},
      {"internalType": "string", "name": "_actionId", "type": "string"}
    ],
    "stateMutability": "nonpayable",
    "type": "constructor"
  },
  {
    "inputs": [],
    "name": "InvalidNullifier",
    "type": "error"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "receiver", "type": "address"},
      {"internalType": "uint256", "name": "root", "type": "uint256"},
      {"internalType": "uint256", "name": "nullifierHash", "type": "uint256"},
      {"internalType": "uint256[8]", "name": "proof", "type": "uint256[8]"}
    ],
    "name": "verifyAndExecute",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`
)

type artifactFile struct {
	Format           string          `json:"_format"`
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
}

// WriteArtifact writes a Hardhat artifact, its .dbg.json sidecar and the
// referenced build-info under root.
func WriteArtifact(t testing.TB, fs afero.Fs, root, source, name, abiJSON, bytecode, solc string) {
	t.Helper()

	dir := path.Join(root, source)
	require.NoError(t, fs.MkdirAll(dir, 0o755))
	writeJSON(t, fs, path.Join(dir, name+".json"), artifactFile{
		Format:           "hh-sol-artifact-1",
		ContractName:     name,
		SourceName:       source,
		ABI:              json.RawMessage(abiJSON),
		Bytecode:         bytecode,
		DeployedBytecode: "0x",
	})

	rel := strings.Repeat("../", strings.Count(source, "/")+1)
	writeJSON(t, fs, path.Join(dir, name+".dbg.json"), map[string]string{
		"_format":   "hh-sol-dbg-1",
		"buildInfo": rel + "build-info/" + WagmiBuildID + ".json",
	})

	require.NoError(t, fs.MkdirAll(path.Join(root, "build-info"), 0o755))
	writeJSON(t, fs, path.Join(root, "build-info", WagmiBuildID+".json"), map[string]any{
		"_format":         "hh-sol-build-info-1",
		"id":              WagmiBuildID,
		"solcVersion":     solc,
		"solcLongVersion": solc + "+commit.fc410830",
		"input": map[string]any{
			"language": "Solidity",
			"sources": map[string]any{
				source: map[string]string{"content": "// SPDX-License-Identifier: MIT\npragma solidity ^0.8.10;\n"},
			},
			"settings": map[string]any{"optimizer": map[string]any{"enabled": false, "runs": 200}},
		},
	})
}

// WriteWagmi writes the WAGMI artifact tree under root.
func WriteWagmi(t testing.TB, fs afero.Fs, root string) {
	WriteArtifact(t, fs, root, WagmiSource, "WAGMI", WagmiABI, WagmiBytecode, SolcVersion)
}

func writeJSON(t testing.TB, fs afero.Fs, p string, v any) {
	t.Helper()
	blob, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, p, blob, 0o644))
}
