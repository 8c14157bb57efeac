package publish

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DeploymentRequest is everything one deployment needs. It is assembled from
// configuration before any network I/O and is not modified afterwards.
type DeploymentRequest struct {
	ContractName    string
	DisplayName     string
	ConstructorArgs []any
	Signer          *ecdsa.PrivateKey
	NetworkName     string
	Network         string
	ChainID         uint64
}

func (r DeploymentRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.ContractName) == "" {
		missing = append(missing, "contract name")
	}
	if r.Signer == nil {
		missing = append(missing, "signer key")
	}
	if strings.TrimSpace(r.Network) == "" {
		missing = append(missing, "network url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

func (r DeploymentRequest) From() common.Address {
	if r.Signer == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(r.Signer.PublicKey)
}

func (r DeploymentRequest) label() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.ContractName
}

// ParsePrivateKey accepts a hex key with or without the 0x prefix.
func ParsePrivateKey(v string) (*ecdsa.PrivateKey, common.Address, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "0x")
	if v == "" {
		return nil, common.Address{}, fmt.Errorf("%w: private key is empty", ErrMissingConfiguration)
	}
	key, err := crypto.HexToECDSA(v)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("%w: parse private key: %w", ErrMissingConfiguration, err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}

// ParseAddress rejects anything that is not a 20 byte hex address.
func ParseAddress(v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%w: invalid address: %s", ErrMissingConfiguration, v)
	}
	return common.HexToAddress(v), nil
}
