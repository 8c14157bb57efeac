package evmtest

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"
)

// Well-known development account (anvil/hardhat account #0).
const (
	DeployerKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	DeployerAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

// Node is a scripted stand-in for an Ethereum JSON-RPC endpoint. It accepts
// signed transactions, tracks nonces per sender and hands out receipts after
// PendingPolls unsuccessful lookups. ReceiptErr fails every receipt lookup.
type Node struct {
	ChainID      uint64
	Balance      *big.Int
	GasEstimate  uint64
	EstimateErr  error
	SendErr      error
	ReceiptFail  bool
	ReceiptErr   error
	PendingPolls int

	mu       sync.Mutex
	nonces   map[common.Address]uint64
	txs      []*types.Transaction
	polls    map[common.Hash]int
	requests atomic.Int64
}

func NewNode() *Node {
	return &Node{
		ChainID:     31337,
		Balance:     new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18)),
		GasEstimate: 450_000,
		nonces:      map[common.Address]uint64{},
		polls:       map[common.Hash]int{},
	}
}

func (n *Node) server(t testing.TB) *rpc.Server {
	t.Helper()
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", &ethService{node: n}); err != nil {
		t.Fatalf("register eth service: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

// Client returns a w3 client wired to the node without a network hop.
func (n *Node) Client(t testing.TB) *w3.Client {
	t.Helper()
	return w3.NewClient(rpc.DialInProc(n.server(t)))
}

// URL serves the node over HTTP and returns its endpoint.
func (n *Node) URL(t testing.TB) string {
	t.Helper()
	srv := httptest.NewServer(n.server(t))
	t.Cleanup(srv.Close)
	return srv.URL
}

// Requests counts the JSON-RPC method calls the node has served.
func (n *Node) Requests() int64 {
	return n.requests.Load()
}

// Transactions returns the raw transactions accepted so far.
func (n *Node) Transactions() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*types.Transaction(nil), n.txs...)
}

func (n *Node) signer() types.Signer {
	return types.LatestSignerForChainID(new(big.Int).SetUint64(n.ChainID))
}

type ethService struct {
	node *Node
}

func (s *ethService) ChainId() *hexutil.Big {
	s.node.requests.Add(1)
	return (*hexutil.Big)(new(big.Int).SetUint64(s.node.ChainID))
}

func (s *ethService) GetTransactionCount(addr common.Address, _ *json.RawMessage) hexutil.Uint64 {
	s.node.requests.Add(1)
	s.node.mu.Lock()
	defer s.node.mu.Unlock()
	return hexutil.Uint64(s.node.nonces[addr])
}

func (s *ethService) GetBalance(_ common.Address, _ *json.RawMessage) *hexutil.Big {
	s.node.requests.Add(1)
	return (*hexutil.Big)(s.node.Balance)
}

func (s *ethService) EstimateGas(_ json.RawMessage, _ *json.RawMessage) (hexutil.Uint64, error) {
	s.node.requests.Add(1)
	if s.node.EstimateErr != nil {
		return 0, s.node.EstimateErr
	}
	return hexutil.Uint64(s.node.GasEstimate), nil
}

func (s *ethService) SendRawTransaction(raw hexutil.Bytes) (common.Hash, error) {
	s.node.requests.Add(1)
	if s.node.SendErr != nil {
		return common.Hash{}, s.node.SendErr
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}
	from, err := types.Sender(s.node.signer(), tx)
	if err != nil {
		return common.Hash{}, err
	}

	s.node.mu.Lock()
	defer s.node.mu.Unlock()
	if tx.Nonce() != s.node.nonces[from] {
		return common.Hash{}, errors.New("nonce too low")
	}
	s.node.nonces[from]++
	s.node.txs = append(s.node.txs, tx)
	return tx.Hash(), nil
}

func (s *ethService) GetTransactionReceipt(hash common.Hash) (*types.Receipt, error) {
	s.node.requests.Add(1)
	if s.node.ReceiptErr != nil {
		return nil, s.node.ReceiptErr
	}
	s.node.mu.Lock()
	defer s.node.mu.Unlock()

	var (
		tx    *types.Transaction
		index int
	)
	for i, candidate := range s.node.txs {
		if candidate.Hash() == hash {
			tx, index = candidate, i
			break
		}
	}
	if tx == nil {
		return nil, nil
	}
	if s.node.polls[hash] < s.node.PendingPolls {
		s.node.polls[hash]++
		return nil, nil
	}

	from, err := types.Sender(s.node.signer(), tx)
	if err != nil {
		return nil, err
	}
	status := types.ReceiptStatusSuccessful
	contract := crypto.CreateAddress(from, tx.Nonce())
	if s.node.ReceiptFail {
		status = types.ReceiptStatusFailed
		contract = common.Address{}
	}
	return &types.Receipt{
		Type:              tx.Type(),
		Status:            status,
		CumulativeGasUsed: tx.Gas(),
		Logs:              []*types.Log{},
		TxHash:            hash,
		ContractAddress:   contract,
		GasUsed:           tx.Gas(),
		EffectiveGasPrice: big.NewInt(1_000_000_000),
		BlockHash:         common.BigToHash(big.NewInt(int64(index + 1))),
		BlockNumber:       big.NewInt(int64(index + 1)),
		TransactionIndex:  0,
	}, nil
}
