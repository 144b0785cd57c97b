// Package faucet funds development accounts on a local chain.
package faucet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"roamlotto/internal/ether"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
)

// DevNetworkID is the chain the faucet is meant for.
const DevNetworkID = 31337

var ErrTransferFailed = errors.New("transfer reverted")

// Backend is the chain access a transfer needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.DeployBackend
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	ChainID(ctx context.Context) (*big.Int, error)
}

type Result struct {
	Transfers int
	Total     *big.Int
	Hashes    []common.Hash
}

func (r Result) String() string {
	return fmt.Sprintf("Transferred %s ETH", ether.Format(r.Total))
}

// IsDevChain reports whether b is the local development network.
func IsDevChain(ctx context.Context, b Backend) (bool, error) {
	id, err := b.ChainID(ctx)
	if err != nil {
		return false, err
	}
	return id.Cmp(big.NewInt(DevNetworkID)) == 0, nil
}

// Drip sends count transfers of amount wei from opts.From to to, waiting for
// each receipt before sending the next.
func Drip(ctx context.Context, b Backend, opts *bind.TransactOpts, to common.Address, count int, amount *big.Int) (Result, error) {
	res := Result{Total: new(big.Int)}
	if count <= 0 || amount == nil || amount.Sign() <= 0 {
		return res, errors.New("count and amount must be positive")
	}
	for i := 0; i < count; i++ {
		hash, err := transfer(ctx, b, opts, to, amount)
		if err != nil {
			return res, fmt.Errorf("transfer %d/%d: %w", i+1, count, err)
		}
		res.Transfers++
		res.Total.Add(res.Total, amount)
		res.Hashes = append(res.Hashes, hash)
		slog.Debug("faucet.transfer", "n", i+1, "to", to.Hex(), "tx", hash.Hex())
	}
	return res, nil
}

func transfer(ctx context.Context, b Backend, opts *bind.TransactOpts, to common.Address, amount *big.Int) (common.Hash, error) {
	nonce, err := b.PendingNonceAt(ctx, opts.From)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := b.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    amount,
		Gas:      params.TxGas,
		GasPrice: gasPrice,
	})
	signed, err := opts.Signer(opts.From, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}
	if err := b.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send: %w", err)
	}
	receipt, err := bind.WaitMined(ctx, b, signed)
	if err != nil {
		return signed.Hash(), fmt.Errorf("await receipt: %w", err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return signed.Hash(), ErrTransferFailed
	}
	return signed.Hash(), nil
}
