// Package ethereum talks to a hosted Ethereum JSON-RPC endpoint and
// normalizes both native value transfers and STQ token log operations into
// the canonical record published on the bus.
package ethereum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"github.com/blockbus/gateway/internal/config"
	"github.com/blockbus/gateway/internal/errs"
	"github.com/blockbus/gateway/internal/httprpc"
	"github.com/blockbus/gateway/internal/models"
)

// Client is the Ethereum capability surface. Tests supply fakes.
type Client interface {
	GetNonce(ctx context.Context, address models.EthereumAddress) (uint64, error)
	GetCurrentBlockNumber(ctx context.Context) (uint64, error)
	GetBlockNumberByHash(ctx context.Context, hash string) (uint64, error)
	GetEthBalance(ctx context.Context, address models.EthereumAddress) (models.Amount, error)
	GetStqBalance(ctx context.Context, address models.EthereumAddress) (models.Amount, error)
	SendRawTx(ctx context.Context, tx models.RawEthereumTransaction) (models.TxHash, error)
	GetEthTransaction(ctx context.Context, hash string) (*models.BlockchainTransaction, error)
	LastEthTransactions(ctx context.Context, startHash string, n uint64) <-chan models.TransactionEvent
	GetStqTransactions(ctx context.Context, parentHash string) <-chan models.TransactionEvent
	LastStqTransactions(ctx context.Context, startHash string, n uint64) <-chan models.TransactionEvent
}

// HTTPClientImpl implements Client over a hosted JSON-RPC endpoint.
// Immutable after construction; safe for concurrent use.
type HTTPClientImpl struct {
	http   httprpc.Client
	rpcURL string

	stqContractAddress string
	stqTransferTopic   string
	stqApprovalTopic   string
	stqBalanceMethod   string
}

var _ Client = (*HTTPClientImpl)(nil)

// NewClient creates an ethereum client. The mode picks the mainnet or testnet
// endpoint; the infura key is injected into the URL.
func NewClient(httpClient httprpc.Client, mode config.Mode, clientCfg config.ClientConfig) *HTTPClientImpl {
	urlFormat := config.InfuraTestnetURLFormat
	if mode.IsProduction() {
		urlFormat = config.InfuraMainnetURLFormat
	}
	rpcURL := fmt.Sprintf(urlFormat, clientCfg.InfuraKey)

	slog.Info("ethereum client created", "mode", mode, "stqContract", clientCfg.StqContractAddress)

	return &HTTPClientImpl{
		http:               httpClient,
		rpcURL:             rpcURL,
		stqContractAddress: clientCfg.StqContractAddress,
		stqTransferTopic:   clientCfg.StqTransferTopic,
		stqApprovalTopic:   clientCfg.StqApprovalTopic,
		stqBalanceMethod:   clientCfg.StqBalanceMethod,
	}
}

// call performs one JSON-RPC exchange and decodes the result field. A null
// result is surfaced as notFound=true with result left untouched.
func (c *HTTPClientImpl) call(ctx context.Context, method string, params []any, result any) (notFound bool, err error) {
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return false, errs.Wrap(err, errs.Internal, "failed to encode rpc request").WithContext(errs.CtxJson)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return false, errs.Wrap(err, errs.Internal, fmt.Sprintf("failed to build rpc request %s", method)).WithSource(errs.SourceTransport)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.http.Do(req)
	if err != nil {
		return false, err
	}

	var envelope rpcResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false, errs.Wrap(err, errs.Internal, fmt.Sprintf("failed to decode %s response", method)).WithContext(errs.CtxJson)
	}
	if envelope.Error != nil {
		return false, errs.Wrap(envelope.Error, errs.Internal, fmt.Sprintf("rpc %s failed", method)).WithSource(errs.SourceServer)
	}
	if len(envelope.Result) == 0 || bytes.Equal(envelope.Result, []byte("null")) {
		return true, nil
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return false, errs.Wrap(err, errs.Internal, fmt.Sprintf("failed to decode %s result", method)).WithContext(errs.CtxJson)
	}
	return false, nil
}

// GetNonce returns the next transaction count for an address.
func (c *HTTPClientImpl) GetNonce(ctx context.Context, address models.EthereumAddress) (uint64, error) {
	var result string
	notFound, err := c.call(ctx, "eth_getTransactionCount", []any{"0x" + string(address), "latest"}, &result)
	if err != nil {
		return 0, err
	}
	if notFound {
		return 0, errs.New(errs.NotFound, fmt.Sprintf("no transaction count for %s", address))
	}
	return parseHexUint64(result)
}

// GetCurrentBlockNumber returns the chain tip height.
func (c *HTTPClientImpl) GetCurrentBlockNumber(ctx context.Context) (uint64, error) {
	var result string
	if _, err := c.call(ctx, "eth_blockNumber", []any{}, &result); err != nil {
		return 0, err
	}
	return parseHexUint64(result)
}

// GetBlockNumberByHash resolves a block hash to its height.
func (c *HTTPClientImpl) GetBlockNumberByHash(ctx context.Context, hash string) (uint64, error) {
	var header ethBlockHeader
	notFound, err := c.call(ctx, "eth_getBlockByHash", []any{"0x" + Strip0x(hash), false}, &header)
	if err != nil {
		return 0, err
	}
	if notFound {
		return 0, errs.New(errs.NotFound, fmt.Sprintf("block %s not found", hash))
	}
	return parseHexUint64(header.Number)
}

// GetEthBalance returns the native balance in wei.
func (c *HTTPClientImpl) GetEthBalance(ctx context.Context, address models.EthereumAddress) (models.Amount, error) {
	var result string
	if _, err := c.call(ctx, "eth_getBalance", []any{"0x" + string(address), "latest"}, &result); err != nil {
		return models.Amount{}, err
	}
	return parseHexAmount(result)
}

// GetStqBalance calls the token contract's balance method for an address.
func (c *HTTPClientImpl) GetStqBalance(ctx context.Context, address models.EthereumAddress) (models.Amount, error) {
	addrBytes, err := HexToBytes(string(address))
	if err != nil {
		return models.Amount{}, err
	}
	data := "0x" + Strip0x(c.stqBalanceMethod) + BytesToHex(ToPadded32(addrBytes))

	callObj := map[string]string{
		"to":   "0x" + Strip0x(c.stqContractAddress),
		"data": data,
	}
	var result string
	if _, err := c.call(ctx, "eth_call", []any{callObj, "latest"}, &result); err != nil {
		return models.Amount{}, err
	}
	return parseHexDataAmount(result)
}

// SendRawTx broadcasts a pre-signed transaction.
func (c *HTTPClientImpl) SendRawTx(ctx context.Context, tx models.RawEthereumTransaction) (models.TxHash, error) {
	var result string
	if _, err := c.call(ctx, "eth_sendRawTransaction", []any{"0x" + string(tx)}, &result); err != nil {
		return "", err
	}
	return models.TxHash(Strip0x(result)), nil
}

// getTransactionByHash fetches one transaction, erroring when unknown.
func (c *HTTPClientImpl) getTransactionByHash(ctx context.Context, hash string) (*ethTransaction, error) {
	var tx ethTransaction
	notFound, err := c.call(ctx, "eth_getTransactionByHash", []any{"0x" + Strip0x(hash)}, &tx)
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, errs.New(errs.NotFound, fmt.Sprintf("transaction %s not found", hash))
	}
	return &tx, nil
}

// getReceipt fetches a transaction receipt. A missing receipt means the
// transaction is not mined yet and surfaces as the NoReceipt kind so callers
// can retry on the next tick.
func (c *HTTPClientImpl) getReceipt(ctx context.Context, hash string) (*ethReceipt, error) {
	var receipt ethReceipt
	notFound, err := c.call(ctx, "eth_getTransactionReceipt", []any{"0x" + Strip0x(hash)}, &receipt)
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, errs.New(errs.NoReceipt, fmt.Sprintf("no receipt for %s yet", hash))
	}
	return &receipt, nil
}

// getBlockWithTransactions fetches one block with inline transaction objects.
func (c *HTTPClientImpl) getBlockWithTransactions(ctx context.Context, number uint64) (*ethBlock, error) {
	var block ethBlock
	notFound, err := c.call(ctx, "eth_getBlockByNumber", []any{hexutil.EncodeUint64(number), true}, &block)
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, errs.New(errs.NotFound, fmt.Sprintf("block %d not found", number))
	}
	return &block, nil
}

// getLogs queries contract logs over a block window for a set of event topics.
func (c *HTTPClientImpl) getLogs(ctx context.Context, fromBlock, toBlock uint64, topics []string) ([]ethLog, error) {
	prefixed := make([]string, len(topics))
	for i, t := range topics {
		prefixed[i] = "0x" + Strip0x(t)
	}
	filter := logFilter{
		FromBlock: hexutil.EncodeUint64(fromBlock),
		ToBlock:   hexutil.EncodeUint64(toBlock),
		Address:   "0x" + Strip0x(c.stqContractAddress),
		Topics:    [][]string{prefixed},
	}
	var logs []ethLog
	if _, err := c.call(ctx, "eth_getLogs", []any{filter}, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// GetEthTransaction fetches and normalizes a single native transaction,
// joining its receipt for the fee and the current tip for confirmations.
func (c *HTTPClientImpl) GetEthTransaction(ctx context.Context, hash string) (*models.BlockchainTransaction, error) {
	tx, err := c.getTransactionByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	receipt, err := c.getReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	currentBlock, err := c.GetCurrentBlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	return normalizeEthTransaction(tx, receipt, currentBlock)
}

// resolveWindow computes the [from, to] block window for a walk plus the tip
// height used for confirmations.
func (c *HTTPClientImpl) resolveWindow(ctx context.Context, startHash string, n uint64) (from, to, tip uint64, err error) {
	tip, err = c.GetCurrentBlockNumber(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	to = tip
	if startHash != "" {
		to, err = c.GetBlockNumberByHash(ctx, startHash)
		if err != nil {
			return 0, 0, 0, err
		}
	}
	from = 0
	if n <= to {
		from = to - n + 1
	}
	return from, to, tip, nil
}

// LastEthTransactions walks the window ending at startHash (or the tip) and
// emits every native transaction with a positive value, normalized and joined
// with its receipt.
func (c *HTTPClientImpl) LastEthTransactions(ctx context.Context, startHash string, n uint64) <-chan models.TransactionEvent {
	out := make(chan models.TransactionEvent)
	go func() {
		defer close(out)
		if n == 0 {
			return
		}
		from, to, tip, err := c.resolveWindow(ctx, startHash, n)
		if err != nil {
			emit(ctx, out, models.TransactionEvent{Err: err})
			return
		}
		for number := from; number <= to; number++ {
			block, err := c.getBlockWithTransactions(ctx, number)
			if err != nil {
				emit(ctx, out, models.TransactionEvent{Err: err})
				return
			}
			for _, tx := range block.Transactions {
				value, err := parseHexAmount(tx.Value)
				if err != nil {
					emit(ctx, out, models.TransactionEvent{Err: err})
					return
				}
				// Zero-value transactions are contract calls; the token
				// walker picks up the ones that matter.
				if value.IsZero() {
					continue
				}
				receipt, err := c.getReceipt(ctx, tx.Hash)
				if err != nil {
					emit(ctx, out, models.TransactionEvent{Err: err})
					return
				}
				normalized, err := normalizeEthTransaction(&tx, receipt, tip)
				if err != nil {
					emit(ctx, out, models.TransactionEvent{Err: err})
					return
				}
				if !emit(ctx, out, models.TransactionEvent{Tx: normalized}) {
					return
				}
			}
		}
	}()
	return out
}

// GetStqTransactions emits the token operations contained in one parent
// transaction: its block's contract logs filtered back to the parent hash.
func (c *HTTPClientImpl) GetStqTransactions(ctx context.Context, parentHash string) <-chan models.TransactionEvent {
	out := make(chan models.TransactionEvent)
	go func() {
		defer close(out)
		parent, err := c.getTransactionByHash(ctx, parentHash)
		if err != nil {
			emit(ctx, out, models.TransactionEvent{Err: err})
			return
		}
		if parent.BlockNumber == nil {
			emit(ctx, out, models.TransactionEvent{Err: errs.New(errs.NoReceipt, fmt.Sprintf("transaction %s is not mined yet", parentHash))})
			return
		}
		blockNumber, err := parseHexUint64(*parent.BlockNumber)
		if err != nil {
			emit(ctx, out, models.TransactionEvent{Err: err})
			return
		}

		logs, err := c.getLogs(ctx, blockNumber, blockNumber, []string{c.stqTransferTopic, c.stqApprovalTopic})
		if err != nil {
			emit(ctx, out, models.TransactionEvent{Err: err})
			return
		}

		receipt, err := c.getReceipt(ctx, parentHash)
		if err != nil {
			emit(ctx, out, models.TransactionEvent{Err: err})
			return
		}
		tip, err := c.GetCurrentBlockNumber(ctx)
		if err != nil {
			emit(ctx, out, models.TransactionEvent{Err: err})
			return
		}

		want := Strip0x(parentHash)
		for _, l := range logs {
			if Strip0x(l.TransactionHash) != want {
				continue
			}
			normalized, err := c.normalizeStqLog(&l, parent.GasPrice, receipt, tip)
			if err != nil {
				emit(ctx, out, models.TransactionEvent{Err: err})
				return
			}
			if !emit(ctx, out, models.TransactionEvent{Tx: normalized}) {
				return
			}
		}
	}()
	return out
}

// LastStqTransactions walks the window and emits every token operation logged
// by the contract. The transfer and approval topics are queried concurrently.
func (c *HTTPClientImpl) LastStqTransactions(ctx context.Context, startHash string, n uint64) <-chan models.TransactionEvent {
	out := make(chan models.TransactionEvent)
	go func() {
		defer close(out)
		if n == 0 {
			return
		}
		from, to, tip, err := c.resolveWindow(ctx, startHash, n)
		if err != nil {
			emit(ctx, out, models.TransactionEvent{Err: err})
			return
		}

		var transferLogs, approvalLogs []ethLog
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			transferLogs, err = c.getLogs(gctx, from, to, []string{c.stqTransferTopic})
			return err
		})
		g.Go(func() error {
			var err error
			approvalLogs, err = c.getLogs(gctx, from, to, []string{c.stqApprovalTopic})
			return err
		})
		if err := g.Wait(); err != nil {
			emit(ctx, out, models.TransactionEvent{Err: err})
			return
		}

		for _, l := range append(transferLogs, approvalLogs...) {
			parent, err := c.getTransactionByHash(ctx, l.TransactionHash)
			if err != nil {
				emit(ctx, out, models.TransactionEvent{Err: err})
				return
			}
			receipt, err := c.getReceipt(ctx, l.TransactionHash)
			if err != nil {
				emit(ctx, out, models.TransactionEvent{Err: err})
				return
			}
			normalized, err := c.normalizeStqLog(&l, parent.GasPrice, receipt, tip)
			if err != nil {
				emit(ctx, out, models.TransactionEvent{Err: err})
				return
			}
			if !emit(ctx, out, models.TransactionEvent{Tx: normalized}) {
				return
			}
		}
	}()
	return out
}

func emit(ctx context.Context, out chan<- models.TransactionEvent, ev models.TransactionEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
