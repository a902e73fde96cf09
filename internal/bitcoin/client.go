// Package bitcoin talks to a Bitcoin Core compatible JSON-RPC node and to the
// public unspent-outputs endpoint, and normalizes raw transactions into the
// canonical record published on the bus.
package bitcoin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blockbus/gateway/internal/config"
	"github.com/blockbus/gateway/internal/errs"
	"github.com/blockbus/gateway/internal/httprpc"
	"github.com/blockbus/gateway/internal/models"
)

// BlockResult is one item of a lazy block walk.
type BlockResult struct {
	Block *Block
	Err   error
}

// Client is the Bitcoin capability surface. Tests supply fakes.
type Client interface {
	GetUtxos(ctx context.Context, address models.BitcoinAddress) ([]models.Utxo, error)
	GetBalance(ctx context.Context, address models.BitcoinAddress) (models.Amount, error)
	SendRawTx(ctx context.Context, tx models.RawBitcoinTransaction) (models.TxHash, error)
	GetBestBlockHash(ctx context.Context) (string, error)
	GetBlockByHash(ctx context.Context, hash string) (*Block, error)
	GetTransaction(ctx context.Context, txid string, blockNumber uint64) (*models.BlockchainTransaction, error)
	LastBlocks(ctx context.Context, startHash string, n uint64) <-chan BlockResult
	LastTransactions(ctx context.Context, startHash string, n uint64) <-chan models.TransactionEvent
}

// HTTPClientImpl implements Client over a Bitcoin Core JSON-RPC endpoint with
// HTTP basic auth. Immutable after construction; safe for concurrent use.
type HTTPClientImpl struct {
	http        httprpc.Client
	rpcURL      string
	rpcUser     string
	rpcPassword string
	utxoBaseURL string
}

var _ Client = (*HTTPClientImpl)(nil)

// NewClient creates a bitcoin client. The mode picks the unspent-outputs base
// URL (mainnet vs testnet).
func NewClient(httpClient httprpc.Client, mode config.Mode, rpcURL, rpcUser, rpcPassword string) *HTTPClientImpl {
	utxoBase := config.BlockchainInfoTestnetURL
	if mode.IsProduction() {
		utxoBase = config.BlockchainInfoMainnetURL
	}

	slog.Info("bitcoin client created", "mode", mode, "utxoBaseURL", utxoBase)

	return &HTTPClientImpl{
		http:        httpClient,
		rpcURL:      rpcURL,
		rpcUser:     rpcUser,
		rpcPassword: rpcPassword,
		utxoBaseURL: utxoBase,
	}
}

// call performs one JSON-RPC exchange and decodes the result field.
func (c *HTTPClientImpl) call(ctx context.Context, method string, params []any, result any) error {
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return errs.Wrap(err, errs.Internal, "failed to encode rpc request").WithContext(errs.CtxJson)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return errs.Wrap(err, errs.Internal, fmt.Sprintf("failed to build rpc request %s", method)).WithSource(errs.SourceTransport)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.rpcUser, c.rpcPassword)

	body, err := c.http.Do(req)
	if err != nil {
		return err
	}

	var envelope rpcResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return errs.Wrap(err, errs.Internal, fmt.Sprintf("failed to decode %s response", method)).WithContext(errs.CtxJson)
	}
	if envelope.Error != nil {
		return errs.Wrap(envelope.Error, errs.Internal, fmt.Sprintf("rpc %s failed", method)).WithSource(errs.SourceServer)
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return errs.Wrap(err, errs.Internal, fmt.Sprintf("failed to decode %s result", method)).WithContext(errs.CtxJson)
	}
	return nil
}

// GetUtxos lists unspent outputs for an address via the public unspent
// endpoint (not the RPC node).
func (c *HTTPClientImpl) GetUtxos(ctx context.Context, address models.BitcoinAddress) ([]models.Utxo, error) {
	url := fmt.Sprintf("%s/unspent?active=%s", c.utxoBaseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, "failed to build utxo request").WithSource(errs.SourceTransport)
	}

	body, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	var resp utxosResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errs.Wrap(err, errs.Internal, fmt.Sprintf("failed to decode utxos for %s", address)).WithContext(errs.CtxJson)
	}

	utxos := make([]models.Utxo, 0, len(resp.UnspentOutputs))
	for _, u := range resp.UnspentOutputs {
		utxos = append(utxos, u.toUtxo())
	}
	return utxos, nil
}

// GetBalance sums the address's unspent outputs.
func (c *HTTPClientImpl) GetBalance(ctx context.Context, address models.BitcoinAddress) (models.Amount, error) {
	utxos, err := c.GetUtxos(ctx, address)
	if err != nil {
		return models.Amount{}, err
	}
	total := models.NewAmount(0)
	for _, u := range utxos {
		total, err = total.CheckedAdd(u.Value)
		if err != nil {
			return models.Amount{}, err
		}
	}
	return total, nil
}

// SendRawTx broadcasts a pre-signed transaction via `sendrawtransaction`.
func (c *HTTPClientImpl) SendRawTx(ctx context.Context, tx models.RawBitcoinTransaction) (models.TxHash, error) {
	var txid string
	if err := c.call(ctx, "sendrawtransaction", []any{string(tx)}, &txid); err != nil {
		return "", err
	}
	return models.TxHash(txid), nil
}

// GetBestBlockHash returns the current tip hash.
func (c *HTTPClientImpl) GetBestBlockHash(ctx context.Context) (string, error) {
	var hash string
	if err := c.call(ctx, "getbestblockhash", []any{}, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// GetBlockByHash fetches one block header plus its txid list.
func (c *HTTPClientImpl) GetBlockByHash(ctx context.Context, hash string) (*Block, error) {
	var block Block
	if err := c.call(ctx, "getblock", []any{hash}, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// getRawTransaction fetches the verbose form of one transaction.
func (c *HTTPClientImpl) getRawTransaction(ctx context.Context, txid string) (*rawTransaction, error) {
	var tx rawTransaction
	if err := c.call(ctx, "getrawtransaction", []any{txid, true}, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetTransaction fetches a transaction, resolves every referenced input
// output with a secondary RPC fan-out, and normalizes the result.
func (c *HTTPClientImpl) GetTransaction(ctx context.Context, txid string, blockNumber uint64) (*models.BlockchainTransaction, error) {
	tx, err := c.getRawTransaction(ctx, txid)
	if err != nil {
		return nil, err
	}

	inputs, err := c.resolveInputs(ctx, tx)
	if err != nil {
		return nil, err
	}

	return normalizeTransaction(tx, inputs, blockNumber)
}

// resolveInputs fetches each transaction referenced by the vins, deduplicated,
// all in flight at once.
func (c *HTTPClientImpl) resolveInputs(ctx context.Context, tx *rawTransaction) (map[string]*rawTransaction, error) {
	unique := make([]string, 0, len(tx.Vin))
	seen := make(map[string]bool, len(tx.Vin))
	for _, in := range tx.Vin {
		if in.Txid == nil || seen[*in.Txid] {
			continue
		}
		seen[*in.Txid] = true
		unique = append(unique, *in.Txid)
	}

	inputs := make(map[string]*rawTransaction, len(unique))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range unique {
		g.Go(func() error {
			inputTx, err := c.getRawTransaction(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			inputs[id] = inputTx
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return inputs, nil
}

// LastBlocks walks n blocks from startHash (or the tip when startHash is
// empty) following previousblockhash, emitting in reverse chain order. The
// walk is lazy: it fetches at most one block ahead of the consumer.
func (c *HTTPClientImpl) LastBlocks(ctx context.Context, startHash string, n uint64) <-chan BlockResult {
	out := make(chan BlockResult)
	go func() {
		defer close(out)
		hash := startHash
		for i := uint64(0); i < n; i++ {
			if hash == "" {
				if i > 0 {
					emitBlock(ctx, out, BlockResult{Err: errs.New(errs.Internal, "block walk ran past the genesis block")})
					return
				}
				best, err := c.GetBestBlockHash(ctx)
				if err != nil {
					emitBlock(ctx, out, BlockResult{Err: err})
					return
				}
				hash = best
			}
			block, err := c.GetBlockByHash(ctx, hash)
			if err != nil {
				emitBlock(ctx, out, BlockResult{Err: err})
				return
			}
			if !emitBlock(ctx, out, BlockResult{Block: block}) {
				return
			}
			hash = block.PreviousBlockHash
		}
	}()
	return out
}

// LastTransactions walks n blocks and emits every normalized non-coinbase
// transaction, block by block. Transaction details are fetched in chunks of
// ten concurrent calls; emission preserves source order.
func (c *HTTPClientImpl) LastTransactions(ctx context.Context, startHash string, n uint64) <-chan models.TransactionEvent {
	out := make(chan models.TransactionEvent)
	go func() {
		defer close(out)
		for br := range c.LastBlocks(ctx, startHash, n) {
			if br.Err != nil {
				emitTx(ctx, out, models.TransactionEvent{Err: br.Err})
				return
			}
			if !c.emitBlockTransactions(ctx, out, br.Block) {
				return
			}
		}
	}()
	return out
}

// emitBlockTransactions fetches and emits one block's transactions, skipping
// the coinbase. Returns false when the consumer is gone.
func (c *HTTPClientImpl) emitBlockTransactions(ctx context.Context, out chan<- models.TransactionEvent, block *Block) bool {
	if len(block.Tx) <= 1 {
		return true
	}
	txids := block.Tx[1:]

	for start := 0; start < len(txids); start += config.BTCTxChunkSize {
		end := start + config.BTCTxChunkSize
		if end > len(txids) {
			end = len(txids)
		}
		chunk := txids[start:end]

		results := make([]*models.BlockchainTransaction, len(chunk))
		g, gctx := errgroup.WithContext(ctx)
		for i, txid := range chunk {
			g.Go(func() error {
				tx, err := c.GetTransaction(gctx, txid, block.Height)
				if err != nil {
					return err
				}
				results[i] = tx
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			emitTx(ctx, out, models.TransactionEvent{Err: err})
			return false
		}

		for _, tx := range results {
			if !emitTx(ctx, out, models.TransactionEvent{Tx: tx}) {
				return false
			}
		}
	}
	return true
}

func emitBlock(ctx context.Context, out chan<- BlockResult, r BlockResult) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

func emitTx(ctx context.Context, out chan<- models.TransactionEvent, r models.TransactionEvent) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
