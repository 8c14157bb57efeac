package publish

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
	"github.com/lmittmann/w3/w3types"
	"go.uber.org/zap"
)

const (
	DefaultGasFeeCap    int64 = 2_000_000_000
	DefaultGasTipCap    int64 = 1_000_000_000
	DefaultPollInterval       = 2 * time.Second
)

type (
	// PendingDeployment is a creation transaction the node accepted but that
	// is not mined yet. ContractAddress is derived from sender and nonce.
	PendingDeployment struct {
		TxHash          common.Hash
		ContractAddress common.Address
		From            common.Address
		Nonce           uint64
		Gas             uint64
		ChainID         uint64
	}

	DeployResult struct {
		TxHash          common.Hash
		ContractAddress common.Address
		From            common.Address
		ChainID         uint64
		BlockNumber     uint64
		GasUsed         uint64
	}

	Options struct {
		// ChainID of zero is resolved with eth_chainId on first submit.
		ChainID   uint64
		GasFeeCap *big.Int
		GasTipCap *big.Int
		// GasLimit of zero means estimate.
		GasLimit     uint64
		PollInterval time.Duration
	}

	Deployer struct {
		client       *w3.Client
		log          *zap.Logger
		signer       types.Signer
		chainID      uint64
		key          *ecdsa.PrivateKey
		address      common.Address
		gasFeeCap    *big.Int
		gasTipCap    *big.Int
		gasLimit     uint64
		pollInterval time.Duration
	}
)

func NewDeployer(rpcURL string, privateKey *ecdsa.PrivateKey, opts Options, log *zap.Logger) (*Deployer, error) {
	client, err := w3.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial rpc: %w", ErrNetwork, err)
	}
	return NewDeployerWithClient(client, privateKey, opts, log), nil
}

func NewDeployerWithClient(client *w3.Client, privateKey *ecdsa.PrivateKey, opts Options, log *zap.Logger) *Deployer {
	if opts.GasFeeCap == nil {
		opts.GasFeeCap = big.NewInt(DefaultGasFeeCap)
	}
	if opts.GasTipCap == nil {
		opts.GasTipCap = big.NewInt(DefaultGasTipCap)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	d := &Deployer{
		client:       client,
		log:          log,
		chainID:      opts.ChainID,
		key:          privateKey,
		address:      crypto.PubkeyToAddress(privateKey.PublicKey),
		gasFeeCap:    opts.GasFeeCap,
		gasTipCap:    opts.GasTipCap,
		gasLimit:     opts.GasLimit,
		pollInterval: opts.PollInterval,
	}
	if d.chainID != 0 {
		d.signer = types.NewLondonSigner(new(big.Int).SetUint64(d.chainID))
	}
	return d
}

func (d *Deployer) Address() common.Address {
	return d.address
}

func (d *Deployer) Close() error {
	return d.client.Close()
}

func (d *Deployer) ensureSigner(ctx context.Context) error {
	if d.signer != nil {
		return nil
	}
	var chainID uint64
	if err := d.client.CallCtx(ctx, eth.ChainID().Returns(&chainID)); err != nil {
		return classifyRPCError("get chain id", err)
	}
	d.chainID = chainID
	d.signer = types.NewLondonSigner(new(big.Int).SetUint64(chainID))
	d.log.Debug("resolved chain id", zap.Uint64("chain_id", chainID))
	return nil
}

func (d *Deployer) getNonce(ctx context.Context) (uint64, error) {
	var nonce uint64
	if err := d.client.CallCtx(ctx, eth.Nonce(d.address, nil).Returns(&nonce)); err != nil {
		return 0, classifyRPCError("get nonce", err)
	}
	return nonce, nil
}

func (d *Deployer) estimateGas(ctx context.Context, data []byte) (uint64, error) {
	var gas uint64
	msg := &w3types.Message{From: d.address, Input: data}
	if err := d.client.CallCtx(ctx, eth.EstimateGas(msg, nil).Returns(&gas)); err != nil {
		return 0, classifyRPCError("estimate gas", err)
	}
	return gas, nil
}

func (d *Deployer) checkFunds(ctx context.Context, gas uint64) error {
	var balance *big.Int
	if err := d.client.CallCtx(ctx, eth.Balance(d.address, nil).Returns(&balance)); err != nil {
		return classifyRPCError("get balance", err)
	}
	need := new(big.Int).Mul(new(big.Int).SetUint64(gas), d.gasFeeCap)
	if balance == nil || balance.Cmp(need) < 0 {
		return fmt.Errorf("%w: %s holds %v wei, deployment needs up to %s wei", ErrInsufficientFunds, d.address.Hex(), balance, need)
	}
	return nil
}

func (d *Deployer) sendTx(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	signedTx, err := types.SignTx(tx, d.signer, d.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	var txHash common.Hash
	if err := d.client.CallCtx(ctx, eth.SendTx(signedTx).Returns(&txHash)); err != nil {
		return common.Hash{}, classifyRPCError("send tx", err)
	}
	if txHash != signedTx.Hash() {
		d.log.Warn("node returned unexpected tx hash", zap.Stringer("want", signedTx.Hash()), zap.Stringer("got", txHash))
	}
	return signedTx.Hash(), nil
}

// Submit signs and broadcasts a contract-creation transaction carrying data
// and returns as soon as the node accepts it.
func (d *Deployer) Submit(ctx context.Context, data []byte) (PendingDeployment, error) {
	if err := d.ensureSigner(ctx); err != nil {
		return PendingDeployment{}, err
	}

	nonce, err := d.getNonce(ctx)
	if err != nil {
		return PendingDeployment{}, err
	}

	gas := d.gasLimit
	if gas == 0 {
		if gas, err = d.estimateGas(ctx, data); err != nil {
			return PendingDeployment{}, err
		}
	}

	if err := d.checkFunds(ctx, gas); err != nil {
		return PendingDeployment{}, err
	}

	// EIP-1559 only
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(d.chainID),
		Nonce:     nonce,
		GasFeeCap: d.gasFeeCap,
		GasTipCap: d.gasTipCap,
		Gas:       gas,
		Data:      data,
	})

	txHash, err := d.sendTx(ctx, tx)
	if err != nil {
		return PendingDeployment{}, err
	}

	pending := PendingDeployment{
		TxHash:          txHash,
		ContractAddress: crypto.CreateAddress(d.address, nonce),
		From:            d.address,
		Nonce:           nonce,
		Gas:             gas,
		ChainID:         d.chainID,
	}
	d.log.Info("deployment submitted",
		zap.Stringer("tx", txHash),
		zap.Stringer("predicted_address", pending.ContractAddress),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
	)
	return pending, nil
}

// Confirm blocks until the transaction behind pending is mined or ctx ends.
func (d *Deployer) Confirm(ctx context.Context, pending PendingDeployment) (DeployResult, error) {
	receipt, err := d.WaitForReceipt(ctx, pending.TxHash)
	if err != nil {
		return DeployResult{}, fmt.Errorf("wait for %s: %w", pending.TxHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return DeployResult{}, fmt.Errorf("%w: deployment %s failed in block %v", ErrRevert, receipt.TxHash.Hex(), receipt.BlockNumber)
	}

	addr := receipt.ContractAddress
	if addr == (common.Address{}) {
		addr = pending.ContractAddress
	}
	res := DeployResult{
		TxHash:          pending.TxHash,
		ContractAddress: addr,
		From:            pending.From,
		ChainID:         pending.ChainID,
		GasUsed:         receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	d.log.Info("deployment confirmed",
		zap.Stringer("address", addr),
		zap.Uint64("block", res.BlockNumber),
		zap.Uint64("gas_used", res.GasUsed),
	)
	return res, nil
}

// WaitForReceipt polls until the receipt exists. Only "not found" answers are
// retried; any other node or transport failure is returned.
func (d *Deployer) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		var receipt *types.Receipt
		err := d.client.CallCtx(ctx, eth.TxReceipt(txHash).Returns(&receipt))
		switch {
		case err == nil && receipt != nil:
			return receipt, nil
		case err == nil, isNotFound(err):
			d.log.Debug("receipt not available yet", zap.Stringer("tx", txHash))
		default:
			return nil, classifyRPCError("get receipt", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
