package ethereum

import (
	"encoding/json"
	"fmt"
)

// rpcResponse is the JSON-RPC envelope returned by the Ethereum endpoint.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("ethereum rpc error %d: %s", e.Code, e.Message)
}

// ethTransaction is the wire form of eth_getTransactionByHash and of the
// inline transactions of eth_getBlockByNumber. All quantities are 0x hex.
type ethTransaction struct {
	Hash        string  `json:"hash"`
	From        string  `json:"from"`
	To          *string `json:"to"`
	Value       string  `json:"value"`
	GasPrice    string  `json:"gasPrice"`
	BlockNumber *string `json:"blockNumber"`
	BlockHash   *string `json:"blockHash"`
}

// ethReceipt is the subset of eth_getTransactionReceipt the gateway joins on.
type ethReceipt struct {
	GasUsed     string `json:"gasUsed"`
	BlockNumber string `json:"blockNumber"`
}

// ethBlock is eth_getBlockByNumber with full transaction objects.
type ethBlock struct {
	Number       string           `json:"number"`
	Hash         string           `json:"hash"`
	Transactions []ethTransaction `json:"transactions"`
}

// ethBlockHeader is eth_getBlockByHash with transaction hashes only.
type ethBlockHeader struct {
	Number string `json:"number"`
	Hash   string `json:"hash"`
}

// ethLog is one eth_getLogs entry. TransactionLogIndex is nullable: some
// hosted endpoints omit it.
type ethLog struct {
	Address             string   `json:"address"`
	Topics              []string `json:"topics"`
	Data                string   `json:"data"`
	BlockNumber         string   `json:"blockNumber"`
	TransactionHash     string   `json:"transactionHash"`
	TransactionLogIndex *string  `json:"transactionLogIndex"`
	LogIndex            *string  `json:"logIndex"`
}

// logFilter is the eth_getLogs request parameter object.
type logFilter struct {
	FromBlock string     `json:"fromBlock"`
	ToBlock   string     `json:"toBlock"`
	Address   string     `json:"address"`
	Topics    [][]string `json:"topics"`
}
