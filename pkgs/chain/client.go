// Package chain talks to the EVM node: gas, nonces, calls, signed broadcasts
// and receipts, with every node error mapped onto a fault kind.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/naveenchin/tt-backend/pkgs/fault"
	log "github.com/sirupsen/logrus"
)

// Client is the capability surface the pipelines use to reach the chain.
// Every error it returns is a *fault.Error. Nothing here retries.
type Client interface {
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	Call(ctx context.Context, call ethereum.CallMsg) ([]byte, error)
	SendSigned(ctx context.Context, tx *types.Transaction) (common.Hash, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Backend is the subset of *ethclient.Client the adapter needs
type Backend interface {
	bind.DeployBackend
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	ChainID(ctx context.Context) (*big.Int, error)
}

// Adapter classifies backend errors into the relay's taxonomy
type Adapter struct {
	backend Backend
}

var _ Client = (*Adapter)(nil)

// NewAdapter wraps a connected backend
func NewAdapter(backend Backend) *Adapter {
	return &Adapter{backend: backend}
}

// EstimateGas simulates the call. A rejected simulation is an Estimation
// error: nothing has been spent yet.
func (a *Adapter) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	gas, err := a.backend.EstimateGas(ctx, call)
	if err != nil {
		return 0, fault.Classify("estimate gas", err, fault.Estimation)
	}
	return gas, nil
}

// GasPrice returns the node's suggested legacy gas price
func (a *Adapter) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := a.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fault.Classify("suggest gas price", err, fault.Connectivity)
	}
	return price, nil
}

// PendingNonce returns the next nonce the node expects for account
func (a *Adapter) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	nonce, err := a.backend.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, fault.Classify("pending nonce", err, fault.Connectivity)
	}
	return nonce, nil
}

// Call executes a read-only call against the latest block
func (a *Adapter) Call(ctx context.Context, call ethereum.CallMsg) ([]byte, error) {
	out, err := a.backend.CallContract(ctx, call, nil)
	if err != nil {
		return nil, fault.Classify("call contract", err, fault.Read)
	}
	return out, nil
}

// SendSigned broadcasts an already signed transaction
func (a *Adapter) SendSigned(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	if err := a.backend.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, fault.Classify("send transaction", err, fault.Broadcast)
	}
	return tx.Hash(), nil
}

// WaitMined blocks until tx has a receipt or ctx is done
func (a *Adapter) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, a.backend, tx)
	if err != nil {
		return nil, fault.Classify("wait mined", err, fault.Connectivity)
	}
	return receipt, nil
}

// ChainID asks the node for its chain id
func (a *Adapter) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := a.backend.ChainID(ctx)
	if err != nil {
		return nil, fault.Classify("chain id", err, fault.Connectivity)
	}
	return id, nil
}

// VerifyContract checks that code is deployed at addr
func (a *Adapter) VerifyContract(ctx context.Context, addr common.Address) error {
	code, err := a.backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return fault.Classify("code at", err, fault.Connectivity)
	}
	if len(code) == 0 {
		return fmt.Errorf("no contract code at %s", addr.Hex())
	}

	log.WithFields(log.Fields{
		"contract":  addr.Hex(),
		"code_size": len(code),
	}).Info("Tracker contract verified")
	return nil
}
