package config

import "time"

// Upstream base URLs.
const (
	BlockchainInfoMainnetURL = "https://blockchain.info"
	BlockchainInfoTestnetURL = "https://testnet.blockchain.info"

	InfuraMainnetURLFormat = "https://mainnet.infura.io/%s"
	InfuraTestnetURLFormat = "https://kovan.infura.io/%s"
)

// Bitcoin block walk.
const (
	// BTCTxChunkSize is how many transaction detail fetches run concurrently
	// per block during the walk.
	BTCTxChunkSize = 10
)

// HTTP client tuning.
const (
	HTTPRequestTimeout      = 30 * time.Second
	HTTPMaxIdleConns        = 32
	HTTPMaxIdleConnsPerHost = 8
)

// Rabbit topology names.
const (
	RabbitExchange = "blockchain_transactions"

	RabbitQueueBTCTransactions = "btc_transactions"
	RabbitQueueETHTransactions = "eth_transactions"
	RabbitQueueSTQTransactions = "stq_transactions"
	RabbitQueueBTCCurrentBlock = "btc_current_block"
	RabbitQueueETHCurrentBlock = "eth_current_block"

	RabbitHeartbeat = 10 * time.Second
)
