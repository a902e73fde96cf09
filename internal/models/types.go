package models

import (
	"fmt"
	"regexp"

	"github.com/blockbus/gateway/internal/errs"
)

// Currency tags the chain (or token) a record belongs to.
type Currency string

const (
	CurrencyBTC Currency = "btc"
	CurrencyETH Currency = "eth"
	CurrencySTQ Currency = "stq"
)

// AllCurrencies is the ordered list of tracked currencies.
var AllCurrencies = []Currency{CurrencyBTC, CurrencyETH, CurrencySTQ}

// ParseCurrency converts a lowercase currency name.
func ParseCurrency(s string) (Currency, error) {
	switch Currency(s) {
	case CurrencyBTC, CurrencyETH, CurrencySTQ:
		return Currency(s), nil
	}
	return "", errs.New(errs.MalformedInput, fmt.Sprintf("unknown currency %q", s))
}

// BitcoinAddress is a base58 or bech32 encoded bitcoin address, passed through
// to upstream endpoints unchanged.
type BitcoinAddress string

// EthereumAddress is a 40-hex-char ethereum address without the 0x prefix.
type EthereumAddress string

var ethAddressRegex = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// ParseEthereumAddress validates the 40-hex-chars-no-prefix form.
func ParseEthereumAddress(s string) (EthereumAddress, error) {
	if !ethAddressRegex.MatchString(s) {
		return "", errs.New(errs.MalformedInput, fmt.Sprintf("invalid ethereum address %q", s))
	}
	return EthereumAddress(s), nil
}

// RawBitcoinTransaction is a pre-signed bitcoin transaction as opaque hex.
type RawBitcoinTransaction string

// RawEthereumTransaction is a pre-signed ethereum transaction as opaque hex.
type RawEthereumTransaction string

// TxHash is a transaction hash as hex without the 0x prefix.
type TxHash string

// Utxo is one unspent bitcoin transaction output.
type Utxo struct {
	TxHash TxHash `json:"tx_hash"`
	Index  uint32 `json:"index"`
	Value  Amount `json:"value"`
}

// Erc20OperationKind distinguishes the two tracked token log events.
type Erc20OperationKind string

const (
	Erc20Approve      Erc20OperationKind = "approve"
	Erc20TransferFrom Erc20OperationKind = "transfer_from"
)

// BlockchainTransactionEntry is one recipient (or sender) with its value.
type BlockchainTransactionEntry struct {
	Address string `json:"address"`
	Value   Amount `json:"value"`
}

// BlockchainTransaction is the canonical normalized record published to the
// message bus. For ERC-20 operations Hash is "<parent eth tx hash>:<log index>"
// so that multiple transfers inside one transaction stay distinct.
type BlockchainTransaction struct {
	Hash          string                       `json:"hash"`
	From          []string                     `json:"from"`
	To            []BlockchainTransactionEntry `json:"to"`
	BlockNumber   uint64                       `json:"block_number"`
	Currency      Currency                     `json:"currency"`
	Fee           Amount                       `json:"fee"`
	Confirmations uint64                       `json:"confirmations"`
	Erc20Kind     *Erc20OperationKind          `json:"erc20_operation_kind,omitempty"`
}

// CurrentBlock is the chain-height record published per poller tick.
type CurrentBlock struct {
	Currency    Currency `json:"currency"`
	BlockNumber uint64   `json:"block_number"`
}
