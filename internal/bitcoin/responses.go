package bitcoin

import (
	"encoding/json"
	"fmt"

	"github.com/blockbus/gateway/internal/errs"
	"github.com/blockbus/gateway/internal/models"
)

// rpcResponse is the JSON-RPC envelope returned by a Bitcoin Core node.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("bitcoin rpc error %d: %s", e.Code, e.Message)
}

// Block is the subset of `getblock` the walker needs.
type Block struct {
	Hash              string   `json:"hash"`
	PreviousBlockHash string   `json:"previousblockhash"`
	Tx                []string `json:"tx"`
	Height            uint64   `json:"height"`
	Confirmations     uint64   `json:"confirmations"`
}

// rawTransaction is the verbose `getrawtransaction` form. Vin txid/vout are
// optional because a referenced input transaction may itself be coinbase.
type rawTransaction struct {
	Txid          string `json:"txid"`
	Vin           []vin  `json:"vin"`
	Vout          []vout `json:"vout"`
	Confirmations uint64 `json:"confirmations"`
}

type vin struct {
	Txid *string `json:"txid"`
	Vout *uint32 `json:"vout"`
}

type vout struct {
	Value        btcAmount    `json:"value"`
	ScriptPubKey scriptPubKey `json:"scriptPubKey"`
}

type scriptPubKey struct {
	Addresses []string `json:"addresses"`
	Type      string   `json:"type"`
}

// btcAmount decodes the node's decimal BTC values (e.g. 0.12345678) straight
// into satoshis.
type btcAmount struct {
	models.Amount
}

func (a *btcAmount) UnmarshalJSON(data []byte) error {
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return errs.Wrap(err, errs.Internal, "bitcoin amount is not a number").WithContext(errs.CtxJson)
	}
	parsed, err := models.AmountFromBitcoinDecimal(num.String())
	if err != nil {
		return err
	}
	a.Amount = parsed
	return nil
}

// utxosResponse is the blockchain.info unspent-outputs payload.
type utxosResponse struct {
	UnspentOutputs []utxoResponse `json:"unspent_outputs"`
}

type utxoResponse struct {
	TxHashBigEndian string        `json:"tx_hash_big_endian"`
	TxOutputN       uint32        `json:"tx_output_n"`
	Value           models.Amount `json:"value"`
}

func (u utxoResponse) toUtxo() models.Utxo {
	return models.Utxo{
		TxHash: models.TxHash(u.TxHashBigEndian),
		Index:  u.TxOutputN,
		Value:  u.Value,
	}
}
