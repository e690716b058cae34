package domain

import (
	"math/big"
	"time"
)

// TransferReference identifies a submitted ledger transaction.
type TransferReference struct {
	TransactionID string `json:"txHash"`
}

// TransferReceipt is the ledger's record of an executed transaction.
type TransferReceipt struct {
	TransactionID  string     `json:"transactionHash"`
	Succeeded      bool       `json:"succeeded"`
	BlockReference string     `json:"blockNumber"`
	Logs           []LogEntry `json:"logs"`
}

// LogEntry is one event log emitted during a transaction.
type LogEntry struct {
	Emitter string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
	Index   string   `json:"logIndex"`
}

// TransferExpectation describes the transfer leg a receipt must contain.
type TransferExpectation struct {
	TokenContract string
	Sender        string
	Recipient     string
}

// DecodedTransferEvent is the matched transfer leg.
type DecodedTransferEvent struct {
	Amount   *big.Int
	LogIndex uint64
	EventAt  time.Time
}

// Token describes the transferred asset on its network.
type Token struct {
	Contract string
	Symbol   string
	Decimals int32
	ChainID  int64
}

// TokenTransfer is one entry of an address's on-chain token activity.
type TokenTransfer struct {
	Hash         string `json:"hash"`
	TimeStamp    int64  `json:"timeStamp"`
	BlockNumber  int64  `json:"blockNumber"`
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"`
	TokenSymbol  string `json:"tokenSymbol"`
	TokenDecimal int    `json:"tokenDecimal"`
}
