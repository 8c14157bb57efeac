package publish

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/afero"
)

type Record struct {
	Contract        string `json:"contract"`
	Network         string `json:"network,omitempty"`
	ChainID         uint64 `json:"chainId"`
	Address         string `json:"address"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     uint64 `json:"blockNumber"`
	GasUsed         uint64 `json:"gasUsed"`
	Deployer        string `json:"deployer"`
	ConstructorArgs string `json:"constructorArgs"`
}

func NewRecord(d Deployment) Record {
	return Record{
		Contract:        d.QualifiedName,
		Network:         d.NetworkName,
		ChainID:         d.ChainID,
		Address:         d.ContractAddress.Hex(),
		TransactionHash: d.TxHash.Hex(),
		BlockNumber:     d.BlockNumber,
		GasUsed:         d.GasUsed,
		Deployer:        d.From.Hex(),
		ConstructorArgs: hexutil.Encode(d.ConstructorArgs),
	}
}

// WriteRecord stores d as <dir>/<network>/<contract>.json, replacing any
// earlier record for the same contract and network.
func WriteRecord(fs afero.Fs, dir string, d Deployment) (string, error) {
	network := d.NetworkName
	if network == "" {
		network = fmt.Sprintf("chain-%d", d.ChainID)
	}
	target := filepath.Join(dir, network)
	if err := fs.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create record dir: %w", err)
	}

	blob, err := json.MarshalIndent(NewRecord(d), "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(target, d.ContractName+".json")
	if err := afero.WriteFile(fs, path, append(blob, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}
	return path, nil
}
