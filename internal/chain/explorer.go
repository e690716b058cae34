package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dotpay/internal/domain"
	"dotpay/pkg/errors"
	"dotpay/pkg/logger"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ExplorerClient reads receipts and blocks through an Etherscan v2 style proxy API.
type ExplorerClient struct {
	baseURL string
	apiKey  string
	chainID int64
	client  *http.Client
	logger  logger.Logger
}

func NewExplorerClient(baseURL, apiKey string, chainID int64, log logger.Logger) *ExplorerClient {
	return &ExplorerClient{
		baseURL: strings.TrimSpace(baseURL),
		apiKey:  strings.TrimSpace(apiKey),
		chainID: chainID,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  log,
	}
}

type proxyResponse struct {
	Result  json.RawMessage `json:"result"`
	Message string          `json:"message"`
	Status  string          `json:"status"`
}

type explorerLog struct {
	Address  string   `json:"address"`
	Topics   []string `json:"topics"`
	Data     string   `json:"data"`
	LogIndex string   `json:"logIndex"`
}

type explorerReceipt struct {
	TransactionHash string        `json:"transactionHash"`
	Status          string        `json:"status"`
	BlockNumber     string        `json:"blockNumber"`
	Logs            []explorerLog `json:"logs"`
}

type explorerBlock struct {
	Timestamp string `json:"timestamp"`
}

// TransactionReceipt returns nil, nil while the receipt is not yet indexed.
func (c *ExplorerClient) TransactionReceipt(ctx context.Context, txID string) (*domain.TransferReceipt, error) {
	raw, err := c.proxy(ctx, "eth_getTransactionReceipt", url.Values{"txhash": {txID}})
	if err != nil || raw == nil {
		return nil, err
	}

	var r explorerReceipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}

	receipt := &domain.TransferReceipt{
		TransactionID:  strings.ToLower(r.TransactionHash),
		Succeeded:      strings.EqualFold(r.Status, "0x1"),
		BlockReference: r.BlockNumber,
		Logs:           make([]domain.LogEntry, 0, len(r.Logs)),
	}
	for _, l := range r.Logs {
		receipt.Logs = append(receipt.Logs, domain.LogEntry{
			Emitter: l.Address,
			Topics:  l.Topics,
			Data:    l.Data,
			Index:   l.LogIndex,
		})
	}
	return receipt, nil
}

// BlockTimestamp returns the timestamp of the block with a hex-encoded number.
func (c *ExplorerClient) BlockTimestamp(ctx context.Context, blockRef string) (time.Time, error) {
	if !strings.HasPrefix(blockRef, "0x") {
		return time.Time{}, fmt.Errorf("invalid block reference %q", blockRef)
	}
	raw, err := c.proxy(ctx, "eth_getBlockByNumber", url.Values{"tag": {blockRef}, "boolean": {"false"}})
	if err != nil {
		return time.Time{}, err
	}
	if raw == nil {
		return time.Time{}, fmt.Errorf("block %s not found", blockRef)
	}

	var b explorerBlock
	if err := json.Unmarshal(raw, &b); err != nil {
		return time.Time{}, fmt.Errorf("decode block: %w", err)
	}
	ts, err := hexutil.DecodeUint64(b.Timestamp)
	if err != nil || ts == 0 {
		return time.Time{}, fmt.Errorf("invalid block timestamp %q", b.Timestamp)
	}
	return time.Unix(int64(ts), 0).UTC(), nil
}

// MaxActivityLimit caps one page of token activity.
const MaxActivityLimit = 25

type explorerTokenTx struct {
	Hash         string `json:"hash"`
	TimeStamp    string `json:"timeStamp"`
	BlockNumber  string `json:"blockNumber"`
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"`
	TokenSymbol  string `json:"tokenSymbol"`
	TokenDecimal string `json:"tokenDecimal"`
}

// TokenTransfers lists the newest transfers of contract involving address.
// An address with no history returns an empty slice.
func (c *ExplorerClient) TokenTransfers(ctx context.Context, contract, address string, limit int) ([]domain.TokenTransfer, error) {
	if c.apiKey == "" {
		return nil, errors.ErrExplorerNotConfigured
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxActivityLimit {
		limit = MaxActivityLimit
	}

	pr, err := c.call(ctx, "account", "tokentx", url.Values{
		"contractaddress": {contract},
		"address":         {address},
		"page":            {"1"},
		"offset":          {strconv.Itoa(limit)},
		"sort":            {"desc"},
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrActivityUnavailable, err.Error())
	}

	// Etherscan-family APIs answer 200 with status "0" on failure.
	if pr.Status != "1" {
		var text string
		_ = json.Unmarshal(pr.Result, &text)
		if noTransactions(pr.Message) || noTransactions(text) {
			return []domain.TokenTransfer{}, nil
		}
		reason := pr.Message
		if text != "" {
			reason = text
		}
		c.logger.Warn("Explorer activity rejected", map[string]interface{}{
			"address": address,
			"message": pr.Message,
			"result":  text,
		})
		return nil, errors.Wrap(errors.ErrActivityUnavailable, reason)
	}

	var rows []explorerTokenTx
	if err := json.Unmarshal(pr.Result, &rows); err != nil {
		return nil, errors.Wrap(errors.ErrActivityUnavailable, "decode transfers: "+err.Error())
	}
	transfers := make([]domain.TokenTransfer, 0, len(rows))
	for _, t := range rows {
		symbol := t.TokenSymbol
		if symbol == "" {
			symbol = "USDC"
		}
		value := t.Value
		if value == "" {
			value = "0"
		}
		transfers = append(transfers, domain.TokenTransfer{
			Hash:         t.Hash,
			TimeStamp:    parseInt(t.TimeStamp, 0),
			BlockNumber:  parseInt(t.BlockNumber, 0),
			From:         t.From,
			To:           t.To,
			Value:        value,
			TokenSymbol:  symbol,
			TokenDecimal: int(parseInt(t.TokenDecimal, 6)),
		})
	}
	return transfers, nil
}

func noTransactions(s string) bool {
	return strings.Contains(strings.ToLower(s), "no transactions found")
}

func parseInt(s string, fallback int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// proxy calls a proxied JSON-RPC action. A null result returns nil, nil.
func (c *ExplorerClient) proxy(ctx context.Context, action string, params url.Values) (json.RawMessage, error) {
	pr, err := c.call(ctx, "proxy", action, params)
	if err != nil {
		return nil, err
	}

	result := strings.TrimSpace(string(pr.Result))
	switch {
	case result == "" || result == "null":
		return nil, nil
	case strings.HasPrefix(result, `"`):
		// Errors come back as a string result, e.g. "Invalid API Key".
		var msg string
		_ = json.Unmarshal(pr.Result, &msg)
		c.logger.Warn("Explorer call rejected", map[string]interface{}{
			"action": action,
			"result": msg,
		})
		return nil, fmt.Errorf("explorer %s: %s", action, msg)
	}
	return pr.Result, nil
}

func (c *ExplorerClient) call(ctx context.Context, module, action string, params url.Values) (*proxyResponse, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid explorer url: %w", err)
	}
	q := u.Query()
	q.Set("chainid", strconv.FormatInt(c.chainID, 10))
	q.Set("module", module)
	q.Set("action", action)
	q.Set("apikey", c.apiKey)
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer returned status %d", resp.StatusCode)
	}

	var pr proxyResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode explorer response: %w", err)
	}
	return &pr, nil
}
