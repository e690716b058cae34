// Package chain reads and writes token transfers on an EVM ledger.
package chain

import (
	"context"
	"crypto/ecdsa"
	stderrors "errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"dotpay/internal/domain"
	"dotpay/pkg/errors"
	"dotpay/pkg/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// RPCClient is a JSON-RPC backed ledger client.
type RPCClient struct {
	client  *ethclient.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	logger  logger.Logger
}

// Dial connects to an RPC endpoint for chainID.
func Dial(ctx context.Context, rawURL string, chainID int64, log logger.Logger) (*RPCClient, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "dial rpc")
	}
	return &RPCClient{
		client:  client,
		chainID: big.NewInt(chainID),
		logger:  log,
	}, nil
}

// WithSigner loads the hex-encoded private key used by SubmitTransfer.
func (c *RPCClient) WithSigner(hexKey string) error {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return errors.Wrap(err, "load signer key")
	}
	c.key = key
	return nil
}

// SenderAddress returns the lowercase address of the configured signer, or "".
func (c *RPCClient) SenderAddress() string {
	if c.key == nil {
		return ""
	}
	return strings.ToLower(crypto.PubkeyToAddress(c.key.PublicKey).Hex())
}

func (c *RPCClient) Close() {
	c.client.Close()
}

// TransactionReceipt returns nil, nil while the receipt is not yet indexed.
func (c *RPCClient) TransactionReceipt(ctx context.Context, txID string) (*domain.TransferReceipt, error) {
	receipt, err := c.client.TransactionReceipt(ctx, common.HexToHash(txID))
	if stderrors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return receiptFromTypes(receipt), nil
}

// BlockTimestamp returns the timestamp of the block with a hex-encoded number.
func (c *RPCClient) BlockTimestamp(ctx context.Context, blockRef string) (time.Time, error) {
	number, err := hexutil.DecodeBig(blockRef)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid block reference %q: %w", blockRef, err)
	}
	header, err := c.client.HeaderByNumber(ctx, number)
	if err != nil {
		return time.Time{}, err
	}
	if header.Time == 0 {
		return time.Time{}, fmt.Errorf("block %s has no timestamp", blockRef)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// TokenBalance returns owner's balance of the token at contract, in base units.
func (c *RPCClient) TokenBalance(ctx context.Context, contract, owner string) (*big.Int, error) {
	data, err := balanceOfCalldata(owner)
	if err != nil {
		return nil, err
	}
	to := common.HexToAddress(contract)
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "balanceOf")
	}
	return decodeBalance(out)
}

// SubmitTransfer signs and broadcasts an ERC-20 transfer. It returns as soon as
// the node accepts the transaction.
func (c *RPCClient) SubmitTransfer(ctx context.Context, contract, to string, amount *big.Int) (domain.TransferReference, error) {
	if c.key == nil {
		return domain.TransferReference{}, errors.Wrap(errors.ErrSubmissionFailed, "no signer configured")
	}

	data, err := TransferCalldata(to, amount)
	if err != nil {
		return domain.TransferReference{}, errors.Wrap(errors.ErrSubmissionFailed, err.Error())
	}

	from := crypto.PubkeyToAddress(c.key.PublicKey)
	token := common.HexToAddress(contract)

	nonce, err := c.client.PendingNonceAt(ctx, from)
	if err != nil {
		return domain.TransferReference{}, errors.Wrap(errors.ErrSubmissionFailed, "nonce: "+err.Error())
	}
	tip, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		return domain.TransferReference{}, errors.Wrap(errors.ErrSubmissionFailed, "gas tip: "+err.Error())
	}
	head, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return domain.TransferReference{}, errors.Wrap(errors.ErrSubmissionFailed, "head: "+err.Error())
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(baseFee, big.NewInt(2)))

	gas, err := c.client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &token, Data: data})
	if err != nil {
		return domain.TransferReference{}, errors.Wrap(errors.ErrSubmissionFailed, "estimate gas: "+err.Error())
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &token,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return domain.TransferReference{}, errors.Wrap(errors.ErrSubmissionFailed, "sign: "+err.Error())
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return domain.TransferReference{}, errors.Wrap(errors.ErrSubmissionFailed, err.Error())
	}

	ref := domain.TransferReference{TransactionID: strings.ToLower(signed.Hash().Hex())}
	c.logger.Info("Transfer submitted", map[string]interface{}{
		"tx_hash": ref.TransactionID,
		"to":      strings.ToLower(to),
		"amount":  amount.String(),
		"nonce":   nonce,
	})
	return ref, nil
}

func receiptFromTypes(r *types.Receipt) *domain.TransferReceipt {
	out := &domain.TransferReceipt{
		TransactionID: strings.ToLower(r.TxHash.Hex()),
		Succeeded:     r.Status == types.ReceiptStatusSuccessful,
		Logs:          make([]domain.LogEntry, 0, len(r.Logs)),
	}
	if r.BlockNumber != nil {
		out.BlockReference = hexutil.EncodeBig(r.BlockNumber)
	}
	for _, l := range r.Logs {
		topics := make([]string, len(l.Topics))
		for i, t := range l.Topics {
			topics[i] = t.Hex()
		}
		out.Logs = append(out.Logs, domain.LogEntry{
			Emitter: l.Address.Hex(),
			Topics:  topics,
			Data:    hexutil.Encode(l.Data),
			Index:   hexutil.EncodeUint64(uint64(l.Index)),
		})
	}
	return out
}
