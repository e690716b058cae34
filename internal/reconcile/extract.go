package reconcile

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"dotpay/internal/chain"
	"dotpay/internal/domain"
	"dotpay/pkg/errors"
)

// Extract finds the transfer leg of receipt that matches exp. The first
// matching log wins; the returned count reports how many logs matched.
func Extract(receipt *domain.TransferReceipt, exp domain.TransferExpectation) (*domain.DecodedTransferEvent, int, error) {
	if receipt == nil {
		return nil, 0, errors.ErrReceiptNotYetAvailable
	}
	if !receipt.Succeeded {
		return nil, 0, errors.ErrOnChainFailure
	}

	contract := strings.ToLower(strings.TrimSpace(exp.TokenContract))
	sender := strings.ToLower(strings.TrimSpace(exp.Sender))
	recipient := strings.ToLower(strings.TrimSpace(exp.Recipient))

	var match *domain.LogEntry
	count := 0
	for i := range receipt.Logs {
		l := &receipt.Logs[i]
		if !strings.EqualFold(l.Emitter, contract) || len(l.Topics) < 3 {
			continue
		}
		if !strings.EqualFold(l.Topics[0], chain.TransferEventTopic) {
			continue
		}
		if TopicToAddress(l.Topics[1]) != sender || TopicToAddress(l.Topics[2]) != recipient {
			continue
		}
		count++
		if match == nil {
			match = l
		}
	}
	if match == nil {
		return nil, 0, errors.ErrNoMatchingTransfer
	}

	amount, err := decodeAmount(match.Data)
	if err != nil {
		return nil, count, errors.Wrap(errors.ErrInvalidEventData, "amount: "+err.Error())
	}
	index, err := decodeLogIndex(match.Index)
	if err != nil {
		return nil, count, errors.Wrap(errors.ErrInvalidEventData, "log index: "+err.Error())
	}

	return &domain.DecodedTransferEvent{Amount: amount, LogIndex: index}, count, nil
}

// TopicToAddress takes the right-aligned 20 bytes of a 32-byte topic.
// It returns "" for anything that is not a 66-character hex topic.
func TopicToAddress(topic string) string {
	t := strings.ToLower(strings.TrimSpace(topic))
	if !strings.HasPrefix(t, "0x") || len(t) != 66 {
		return ""
	}
	return "0x" + t[len(t)-40:]
}

func decodeAmount(data string) (*big.Int, error) {
	raw := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(data)), "0x")
	if raw == "" {
		return nil, errors.ErrInvalidEventData
	}
	if len(raw)%2 == 1 {
		raw = "0" + raw
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

func decodeLogIndex(index string) (uint64, error) {
	raw := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(index)), "0x")
	if raw == "" {
		return 0, errors.ErrInvalidEventData
	}
	return strconv.ParseUint(raw, 16, 64)
}
