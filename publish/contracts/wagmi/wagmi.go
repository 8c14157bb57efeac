package wagmi

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/wagmi-world/protocol/publish"
)

const (
	name            = "WAGMI"
	displayName     = "Wagmi"
	license         = "MIT"
	solidityVersion = "0.8.10"
	worldIDRouter   = "0xABB70f7F39035586Da57B3c8136035f87AC0d2Aa"
	groupID         = 1
)

var constructorInputs = mustArguments("address", "uint256", "string")

type ConstructorArgs struct {
	WorldID  common.Address
	GroupID  *big.Int
	ActionID string
}

func Name() string            { return name }
func DisplayName() string     { return displayName }
func License() string         { return license }
func SolidityVersion() string { return solidityVersion }

// NewConstructorArgs binds actionID to the fixed World ID router and group.
func NewConstructorArgs(actionID string) (ConstructorArgs, error) {
	if strings.TrimSpace(actionID) == "" {
		return ConstructorArgs{}, fmt.Errorf("%w: ACTION_ID is not set", publish.ErrMissingConfiguration)
	}
	return ConstructorArgs{
		WorldID:  common.HexToAddress(worldIDRouter),
		GroupID:  big.NewInt(groupID),
		ActionID: actionID,
	}, nil
}

// Values returns the arguments in constructor order.
func (a ConstructorArgs) Values() []any {
	return []any{a.WorldID, a.GroupID, a.ActionID}
}

// CheckABI fails when the compiled constructor does not take (address,uint256,string).
func CheckABI(parsed abi.ABI) error {
	got := parsed.Constructor.Inputs
	if len(got) != len(constructorInputs) {
		return fmt.Errorf("%s constructor takes %d arguments, expected %d", name, len(got), len(constructorInputs))
	}
	for i, want := range constructorInputs {
		if got[i].Type.String() != want.Type.String() {
			return fmt.Errorf("%s constructor argument %d is %s, expected %s", name, i, got[i].Type, want.Type)
		}
	}
	return nil
}

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args[i] = abi.Argument{Type: typ}
	}
	return args
}

func Request(args ConstructorArgs, signerKey, networkName, rpcURL string, chainID uint64) (publish.DeploymentRequest, error) {
	key, _, err := publish.ParsePrivateKey(signerKey)
	if err != nil {
		return publish.DeploymentRequest{}, err
	}
	req := publish.DeploymentRequest{
		ContractName:    name,
		DisplayName:     displayName,
		ConstructorArgs: args.Values(),
		Signer:          key,
		NetworkName:     networkName,
		Network:         rpcURL,
		ChainID:         chainID,
	}
	if err := req.Validate(); err != nil {
		return publish.DeploymentRequest{}, err
	}
	return req, nil
}
