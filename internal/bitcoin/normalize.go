package bitcoin

import (
	"fmt"

	"github.com/blockbus/gateway/internal/errs"
	"github.com/blockbus/gateway/internal/models"
)

// missingAddress stands in for outputs whose script carries no address
// (P2SH and other non-address scripts).
const missingAddress = "0"

// normalizeTransaction turns a verbose raw transaction plus its resolved input
// transactions into the canonical record.
//
// Fee is sum(resolved input values) - sum(output values); both sums and the
// subtraction are checked. Input entries with the placeholder address are
// dropped from the sender list only after the fee is computed, so their values
// still count.
func normalizeTransaction(tx *rawTransaction, inputs map[string]*rawTransaction, blockNumber uint64) (*models.BlockchainTransaction, error) {
	fromSum := models.NewAmount(0)
	from := make([]string, 0, len(tx.Vin))

	for _, in := range tx.Vin {
		if in.Txid == nil || in.Vout == nil {
			return nil, errs.New(errs.Internal, fmt.Sprintf("tx %s has vin without txid/vout", tx.Txid)).
				WithContext(errs.CtxBitcoinRpcConversion)
		}
		inputTx, ok := inputs[*in.Txid]
		if !ok {
			return nil, errs.New(errs.Internal, fmt.Sprintf("tx %s input %s is unresolved", tx.Txid, *in.Txid)).
				WithContext(errs.CtxBitcoinRpcConversion)
		}
		if int(*in.Vout) >= len(inputTx.Vout) {
			return nil, errs.New(errs.Internal, fmt.Sprintf("tx %s references %s vout %d, which does not exist", tx.Txid, *in.Txid, *in.Vout)).
				WithContext(errs.CtxBitcoinRpcConversion)
		}
		referenced := inputTx.Vout[*in.Vout]

		var err error
		fromSum, err = fromSum.CheckedAdd(referenced.Value.Amount)
		if err != nil {
			return nil, err
		}
		from = append(from, outputAddress(referenced))
	}

	toSum := models.NewAmount(0)
	to := make([]models.BlockchainTransactionEntry, 0, len(tx.Vout))
	for _, out := range tx.Vout {
		var err error
		toSum, err = toSum.CheckedAdd(out.Value.Amount)
		if err != nil {
			return nil, err
		}
		to = append(to, models.BlockchainTransactionEntry{
			Address: outputAddress(out),
			Value:   out.Value.Amount,
		})
	}

	fee, err := fromSum.CheckedSub(toSum)
	if err != nil {
		return nil, err
	}

	// Placeholder senders are filtered after the fee math; duplicates stay.
	filtered := make([]string, 0, len(from))
	for _, addr := range from {
		if addr == missingAddress {
			continue
		}
		filtered = append(filtered, addr)
	}

	confirmations := uint64(0)
	if tx.Confirmations > 0 {
		confirmations = tx.Confirmations - 1
	}

	return &models.BlockchainTransaction{
		Hash:          tx.Txid,
		From:          filtered,
		To:            to,
		BlockNumber:   blockNumber,
		Currency:      models.CurrencyBTC,
		Fee:           fee,
		Confirmations: confirmations,
	}, nil
}

func outputAddress(out vout) string {
	if len(out.ScriptPubKey.Addresses) == 0 {
		return missingAddress
	}
	return out.ScriptPubKey.Addresses[0]
}
