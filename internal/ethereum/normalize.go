package ethereum

import (
	"fmt"
	"strings"

	"github.com/blockbus/gateway/internal/errs"
	"github.com/blockbus/gateway/internal/models"
)

// contractCreationAddress stands in for the recipient of a contract-creation
// transaction, which has no `to` field.
const contractCreationAddress = "0"

// normalizeEthTransaction turns a native transaction plus its receipt into
// the canonical record. Fee is gas_used * gas_price, both checked.
func normalizeEthTransaction(tx *ethTransaction, receipt *ethReceipt, currentBlock uint64) (*models.BlockchainTransaction, error) {
	value, err := parseHexAmount(tx.Value)
	if err != nil {
		return nil, err
	}
	gasPrice, err := parseHexAmount(tx.GasPrice)
	if err != nil {
		return nil, err
	}
	gasUsed, err := parseHexAmount(receipt.GasUsed)
	if err != nil {
		return nil, err
	}
	fee, err := gasUsed.CheckedMul(gasPrice)
	if err != nil {
		return nil, err
	}
	blockNumber, err := parseHexUint64(receipt.BlockNumber)
	if err != nil {
		return nil, err
	}

	to := contractCreationAddress
	if tx.To != nil {
		to = Strip0x(*tx.To)
	}

	return &models.BlockchainTransaction{
		Hash:          Strip0x(tx.Hash),
		From:          []string{Strip0x(tx.From)},
		To:            []models.BlockchainTransactionEntry{{Address: to, Value: value}},
		BlockNumber:   blockNumber,
		Currency:      models.CurrencyETH,
		Fee:           fee,
		Confirmations: confirmations(currentBlock, blockNumber),
	}, nil
}

// normalizeStqLog turns one contract log plus its parent transaction's gas
// price and receipt into the canonical record. The hash is extended with the
// log index so multiple operations inside one transaction stay distinct.
func (c *HTTPClientImpl) normalizeStqLog(l *ethLog, parentGasPrice string, receipt *ethReceipt, currentBlock uint64) (*models.BlockchainTransaction, error) {
	if len(l.Topics) < 3 {
		return nil, errs.New(errs.Internal, fmt.Sprintf("log of %s has %d topics, need 3", l.TransactionHash, len(l.Topics))).
			WithContext(errs.CtxTopics)
	}

	var kind *models.Erc20OperationKind
	switch {
	case topicsEqual(l.Topics[0], c.stqApprovalTopic):
		k := models.Erc20Approve
		kind = &k
	case topicsEqual(l.Topics[0], c.stqTransferTopic):
		k := models.Erc20TransferFrom
		kind = &k
	}

	value, err := parseHexDataAmount(l.Data)
	if err != nil {
		return nil, err
	}
	gasPrice, err := parseHexAmount(parentGasPrice)
	if err != nil {
		return nil, err
	}
	gasUsed, err := parseHexAmount(receipt.GasUsed)
	if err != nil {
		return nil, err
	}
	fee, err := gasUsed.CheckedMul(gasPrice)
	if err != nil {
		return nil, err
	}
	blockNumber, err := parseHexUint64(l.BlockNumber)
	if err != nil {
		return nil, err
	}
	logIndex, err := resolveLogIndex(l)
	if err != nil {
		return nil, err
	}

	return &models.BlockchainTransaction{
		Hash:          fmt.Sprintf("%s:%d", Strip0x(l.TransactionHash), logIndex),
		From:          []string{lastAddressChars(l.Topics[1])},
		To:            []models.BlockchainTransactionEntry{{Address: lastAddressChars(l.Topics[2]), Value: value}},
		BlockNumber:   blockNumber,
		Currency:      models.CurrencySTQ,
		Fee:           fee,
		Confirmations: confirmations(currentBlock, blockNumber),
		Erc20Kind:     kind,
	}, nil
}

// resolveLogIndex picks the index that extends the parent hash. Some hosted
// endpoints omit transactionLogIndex; logIndex is the fallback there, and 0
// the last resort (which can collide when one transaction carries several
// operations).
func resolveLogIndex(l *ethLog) (uint64, error) {
	switch {
	case l.TransactionLogIndex != nil:
		return parseHexUint64(*l.TransactionLogIndex)
	case l.LogIndex != nil:
		return parseHexUint64(*l.LogIndex)
	default:
		return 0, nil
	}
}

func topicsEqual(a, b string) bool {
	return strings.EqualFold(Strip0x(a), Strip0x(b))
}

func confirmations(currentBlock, blockNumber uint64) uint64 {
	if currentBlock <= blockNumber {
		return 0
	}
	return currentBlock - blockNumber
}
