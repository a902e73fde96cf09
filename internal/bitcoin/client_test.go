package bitcoin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/blockbus/gateway/internal/config"
	"github.com/blockbus/gateway/internal/httprpc"
	"github.com/blockbus/gateway/internal/models"
)

// fakeNode is an httptest-backed Bitcoin Core JSON-RPC node.
type fakeNode struct {
	bestBlockHash string
	blocks        map[string]string // hash -> getblock result JSON
	txs           map[string]string // txid -> getrawtransaction result JSON
	calls         atomic.Int64
}

func (n *fakeNode) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n.calls.Add(1)

		var req struct {
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		switch req.Method {
		case "getbestblockhash":
			fmt.Fprintf(w, `{"result":%q,"error":null}`, n.bestBlockHash)
		case "getblock":
			hash := req.Params[0].(string)
			block, ok := n.blocks[hash]
			if !ok {
				fmt.Fprint(w, `{"result":null,"error":{"code":-5,"message":"Block not found"}}`)
				return
			}
			fmt.Fprintf(w, `{"result":%s,"error":null}`, block)
		case "getrawtransaction":
			txid := req.Params[0].(string)
			tx, ok := n.txs[txid]
			if !ok {
				fmt.Fprint(w, `{"result":null,"error":{"code":-5,"message":"No such mempool or blockchain transaction"}}`)
				return
			}
			fmt.Fprintf(w, `{"result":%s,"error":null}`, tx)
		case "sendrawtransaction":
			fmt.Fprint(w, `{"result":"cafebabe","error":null}`)
		default:
			fmt.Fprintf(w, `{"result":null,"error":{"code":-32601,"message":"Method not found: %s"}}`, req.Method)
		}
	}
}

func newTestClient(t *testing.T, node *fakeNode) (*HTTPClientImpl, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(node.handler())
	t.Cleanup(srv.Close)
	return NewClient(httprpc.New(4, 0), config.ModeNightly, srv.URL, "user", "password"), srv
}

// walkNode builds the chain H3 -> H2 -> H1 -> genesis; each block lists only
// its coinbase txid.
func walkNode() *fakeNode {
	return &fakeNode{
		bestBlockHash: "H3",
		blocks: map[string]string{
			"H3": `{"hash":"H3","previousblockhash":"H2","tx":["cb3"],"height":103,"confirmations":1}`,
			"H2": `{"hash":"H2","previousblockhash":"H1","tx":["cb2"],"height":102,"confirmations":2}`,
			"H1": `{"hash":"H1","previousblockhash":"genesis","tx":["cb1"],"height":101,"confirmations":3}`,
		},
	}
}

func collectBlocks(t *testing.T, ch <-chan BlockResult) []*Block {
	t.Helper()
	var blocks []*Block
	for r := range ch {
		if r.Err != nil {
			t.Fatalf("walk error = %v", r.Err)
		}
		blocks = append(blocks, r.Block)
	}
	return blocks
}

func TestLastBlocksChaining(t *testing.T) {
	client, _ := newTestClient(t, walkNode())

	blocks := collectBlocks(t, client.LastBlocks(context.Background(), "H3", 3))
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(blocks))
	}
	wantOrder := []string{"H3", "H2", "H1"}
	for i, b := range blocks {
		if b.Hash != wantOrder[i] {
			t.Errorf("blocks[%d].Hash = %s, want %s", i, b.Hash, wantOrder[i])
		}
	}
	for i := 0; i < len(blocks)-1; i++ {
		if blocks[i].PreviousBlockHash != blocks[i+1].Hash {
			t.Errorf("blocks[%d].PreviousBlockHash = %s, want %s", i, blocks[i].PreviousBlockHash, blocks[i+1].Hash)
		}
	}
}

func TestLastBlocksStartsAtTipWhenNoHash(t *testing.T) {
	client, _ := newTestClient(t, walkNode())

	blocks := collectBlocks(t, client.LastBlocks(context.Background(), "", 2))
	if len(blocks) != 2 || blocks[0].Hash != "H3" || blocks[1].Hash != "H2" {
		t.Fatalf("unexpected walk: %+v", blocks)
	}
}

func TestLastBlocksZeroMakesNoCalls(t *testing.T) {
	node := walkNode()
	client, _ := newTestClient(t, node)

	blocks := collectBlocks(t, client.LastBlocks(context.Background(), "", 0))
	if len(blocks) != 0 {
		t.Fatalf("got %d blocks, want 0", len(blocks))
	}
	if got := node.calls.Load(); got != 0 {
		t.Errorf("rpc calls = %d, want 0", got)
	}
}

func TestLastBlocksSurfacesWalkError(t *testing.T) {
	node := walkNode()
	delete(node.blocks, "H1")
	client, _ := newTestClient(t, node)

	var sawErr bool
	var count int
	for r := range client.LastBlocks(context.Background(), "H3", 3) {
		if r.Err != nil {
			sawErr = true
			break
		}
		count++
	}
	if !sawErr {
		t.Fatal("expected walk error for missing block")
	}
	if count != 2 {
		t.Errorf("emitted %d blocks before error, want 2", count)
	}
}

// feeNode defines block B1 containing T1 (2 inputs from address A worth 0.5
// and 0.3 BTC, one output of 0.79 to B) plus the referenced input txs.
func feeNode(inputTx2Vout string) *fakeNode {
	return &fakeNode{
		bestBlockHash: "B1",
		blocks: map[string]string{
			"B1": `{"hash":"B1","previousblockhash":"B0","tx":["coinbase1","T1"],"height":500,"confirmations":1}`,
		},
		txs: map[string]string{
			"T1": `{
				"txid":"T1",
				"vin":[{"txid":"in1","vout":0},{"txid":"in2","vout":1}],
				"vout":[{"value":0.79,"scriptPubKey":{"addresses":["B"],"type":"pubkeyhash"}}],
				"confirmations":1
			}`,
			"in1": `{
				"txid":"in1",
				"vin":[{}],
				"vout":[{"value":0.5,"scriptPubKey":{"addresses":["A"],"type":"pubkeyhash"}}],
				"confirmations":10
			}`,
			"in2": fmt.Sprintf(`{
				"txid":"in2",
				"vin":[{}],
				"vout":[{"value":1.0,"scriptPubKey":{"addresses":["X"],"type":"pubkeyhash"}},%s],
				"confirmations":10
			}`, inputTx2Vout),
		},
	}
}

func TestGetTransactionFeeMath(t *testing.T) {
	node := feeNode(`{"value":0.3,"scriptPubKey":{"addresses":["A"],"type":"pubkeyhash"}}`)
	client, _ := newTestClient(t, node)

	tx, err := client.GetTransaction(context.Background(), "T1", 500)
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}

	if tx.Hash != "T1" {
		t.Errorf("Hash = %s", tx.Hash)
	}
	if tx.Fee.String() != "1000000" {
		t.Errorf("Fee = %s sat, want 1000000", tx.Fee)
	}
	if len(tx.From) != 2 || tx.From[0] != "A" || tx.From[1] != "A" {
		t.Errorf("From = %v, want [A A]", tx.From)
	}
	if len(tx.To) != 1 || tx.To[0].Address != "B" || tx.To[0].Value.String() != "79000000" {
		t.Errorf("To = %+v", tx.To)
	}
	if tx.Confirmations != 0 {
		t.Errorf("Confirmations = %d, want 0", tx.Confirmations)
	}
	if tx.Currency != models.CurrencyBTC {
		t.Errorf("Currency = %s", tx.Currency)
	}
	if tx.BlockNumber != 500 {
		t.Errorf("BlockNumber = %d", tx.BlockNumber)
	}
}

func TestGetTransactionFiltersPlaceholderAfterFee(t *testing.T) {
	// Second input's referenced vout has no addresses (P2SH): its value still
	// counts toward the fee, but the sender entry is dropped.
	node := feeNode(`{"value":0.3,"scriptPubKey":{"addresses":[],"type":"scripthash"}}`)
	client, _ := newTestClient(t, node)

	tx, err := client.GetTransaction(context.Background(), "T1", 500)
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if tx.Fee.String() != "1000000" {
		t.Errorf("Fee = %s sat, want 1000000", tx.Fee)
	}
	if len(tx.From) != 1 || tx.From[0] != "A" {
		t.Errorf("From = %v, want [A]", tx.From)
	}
}

func TestLastTransactionsSkipsCoinbase(t *testing.T) {
	node := feeNode(`{"value":0.3,"scriptPubKey":{"addresses":["A"],"type":"pubkeyhash"}}`)
	client, _ := newTestClient(t, node)

	var txs []*models.BlockchainTransaction
	for r := range client.LastTransactions(context.Background(), "B1", 1) {
		if r.Err != nil {
			t.Fatalf("stream error = %v", r.Err)
		}
		txs = append(txs, r.Tx)
	}
	if len(txs) != 1 || txs[0].Hash != "T1" {
		t.Fatalf("txs = %+v, want only T1", txs)
	}
	if txs[0].BlockNumber != 500 {
		t.Errorf("BlockNumber = %d, want 500", txs[0].BlockNumber)
	}
}

func TestLastTransactionsPreservesOrderAcrossChunks(t *testing.T) {
	// 25 transactions force three chunks; emission must follow source order.
	const txCount = 25
	node := &fakeNode{
		bestBlockHash: "B1",
		txs:           map[string]string{},
	}

	txids := []string{"coinbase1"}
	srcVouts := make([]string, txCount)
	for i := 0; i < txCount; i++ {
		txid := fmt.Sprintf("T%02d", i)
		txids = append(txids, txid)
		node.txs[txid] = fmt.Sprintf(`{
			"txid":%q,
			"vin":[{"txid":"src","vout":%d}],
			"vout":[{"value":0.1,"scriptPubKey":{"addresses":["B"],"type":"pubkeyhash"}}],
			"confirmations":1
		}`, txid, i)
		srcVouts[i] = `{"value":0.2,"scriptPubKey":{"addresses":["A"],"type":"pubkeyhash"}}`
	}
	node.txs["src"] = fmt.Sprintf(`{"txid":"src","vin":[{}],"vout":[%s],"confirmations":9}`,
		strings.Join(srcVouts, ","))

	blockTx, _ := json.Marshal(txids)
	node.blocks = map[string]string{
		"B1": fmt.Sprintf(`{"hash":"B1","previousblockhash":"B0","tx":%s,"height":600,"confirmations":1}`, blockTx),
	}

	client, _ := newTestClient(t, node)
	var got []string
	for r := range client.LastTransactions(context.Background(), "B1", 1) {
		if r.Err != nil {
			t.Fatalf("stream error = %v", r.Err)
		}
		got = append(got, r.Tx.Hash)
	}

	if len(got) != txCount {
		t.Fatalf("emitted %d transactions, want %d", len(got), txCount)
	}
	for i, hash := range got {
		if want := fmt.Sprintf("T%02d", i); hash != want {
			t.Fatalf("emission order broken at %d: got %s, want %s", i, hash, want)
		}
	}
}

func TestGetUtxos(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/unspent" || r.URL.Query().Get("active") != "addr1" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"unspent_outputs":[
			{"tx_hash_big_endian":"beef","tx_output_n":0,"value":5000},
			{"tx_hash_big_endian":"f00d","tx_output_n":2,"value":1500}
		]}`)
	}))
	defer srv.Close()

	client := NewClient(httprpc.New(4, 0), config.ModeNightly, "http://unused", "u", "p")
	client.utxoBaseURL = srv.URL

	utxos, err := client.GetUtxos(context.Background(), "addr1")
	if err != nil {
		t.Fatalf("GetUtxos() error = %v", err)
	}
	if len(utxos) != 2 {
		t.Fatalf("got %d utxos, want 2", len(utxos))
	}
	if utxos[0].TxHash != "beef" || utxos[0].Index != 0 || utxos[0].Value.String() != "5000" {
		t.Errorf("utxos[0] = %+v", utxos[0])
	}

	balance, err := client.GetBalance(context.Background(), "addr1")
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if balance.String() != "6500" {
		t.Errorf("balance = %s, want 6500", balance)
	}
}

func TestSendRawTx(t *testing.T) {
	client, _ := newTestClient(t, walkNode())
	hash, err := client.SendRawTx(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("SendRawTx() error = %v", err)
	}
	if hash != "cafebabe" {
		t.Errorf("hash = %s", hash)
	}
}

func TestRPCErrorSurfaces(t *testing.T) {
	client, _ := newTestClient(t, walkNode())
	_, err := client.GetBlockByHash(context.Background(), "unknown")
	if err == nil {
		t.Fatal("expected rpc error")
	}
}
