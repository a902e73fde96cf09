package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseCurrency(t *testing.T) {
	for _, c := range []string{"btc", "eth", "stq"} {
		got, err := ParseCurrency(c)
		if err != nil || string(got) != c {
			t.Errorf("ParseCurrency(%q) = %v, %v", c, got, err)
		}
	}
	for _, c := range []string{"BTC", "doge", ""} {
		if _, err := ParseCurrency(c); err == nil {
			t.Errorf("ParseCurrency(%q) expected error", c)
		}
	}
}

func TestParseEthereumAddress(t *testing.T) {
	valid := "a1b2c3d4e5f60718293a4b5c6d7e8f9012345678"
	if _, err := ParseEthereumAddress(valid); err != nil {
		t.Errorf("ParseEthereumAddress(%q) error = %v", valid, err)
	}
	for _, c := range []string{
		"0x" + valid,                                 // prefix not allowed
		valid[:39],                                   // too short
		valid + "0",                                  // too long
		"g1b2c3d4e5f60718293a4b5c6d7e8f9012345678",   // non-hex
		"",
	} {
		if _, err := ParseEthereumAddress(c); err == nil {
			t.Errorf("ParseEthereumAddress(%q) expected error", c)
		}
	}
}

func TestBlockchainTransactionJSONShape(t *testing.T) {
	kind := Erc20TransferFrom
	tx := BlockchainTransaction{
		Hash:          "dead:1",
		From:          []string{"aa"},
		To:            []BlockchainTransactionEntry{{Address: "bb", Value: NewAmount(1000)}},
		BlockNumber:   16,
		Currency:      CurrencySTQ,
		Fee:           NewAmount(105000000000000),
		Confirmations: 2,
		Erc20Kind:     &kind,
	}

	out, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(out)
	for _, want := range []string{
		`"hash":"dead:1"`,
		`"from":["aa"]`,
		`"to":[{"address":"bb","value":1000}]`,
		`"block_number":16`,
		`"currency":"stq"`,
		`"fee":105000000000000`,
		`"confirmations":2`,
		`"erc20_operation_kind":"transfer_from"`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("marshaled tx missing %s: %s", want, s)
		}
	}
}

func TestBlockchainTransactionOmitsNilErc20Kind(t *testing.T) {
	tx := BlockchainTransaction{Hash: "h", Currency: CurrencyBTC}
	out, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(out), "erc20_operation_kind") {
		t.Errorf("nil kind should be omitted: %s", out)
	}
}

func TestUtxoJSONShape(t *testing.T) {
	u := Utxo{TxHash: "beef", Index: 3, Value: NewAmount(5000)}
	out, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"tx_hash":"beef","index":3,"value":5000}`
	if string(out) != want {
		t.Errorf("marshaled utxo = %s, want %s", out, want)
	}
}
