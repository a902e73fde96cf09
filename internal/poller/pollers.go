package poller

import (
	"context"
	"time"

	"github.com/blockbus/gateway/internal/bitcoin"
	"github.com/blockbus/gateway/internal/config"
	"github.com/blockbus/gateway/internal/ethereum"
	"github.com/blockbus/gateway/internal/models"
	"github.com/blockbus/gateway/internal/rabbit"
)

// NewBitcoin polls the bitcoin chain.
func NewBitcoin(cfg config.PollerConfig, client bitcoin.Client, publisher rabbit.Publisher) *Poller {
	currentBlock := func(ctx context.Context) (uint64, error) {
		hash, err := client.GetBestBlockHash(ctx)
		if err != nil {
			return 0, err
		}
		block, err := client.GetBlockByHash(ctx, hash)
		if err != nil {
			return 0, err
		}
		return block.Height, nil
	}
	return New(
		"bitcoin",
		models.CurrencyBTC,
		time.Duration(cfg.BitcoinIntervalSecs)*time.Second,
		uint64(cfg.BitcoinNumberOfTrackedConfirmations),
		client.LastTransactions,
		currentBlock,
		publisher,
	)
}

// NewEthereum polls native value transfers.
func NewEthereum(cfg config.PollerConfig, client ethereum.Client, publisher rabbit.Publisher) *Poller {
	return New(
		"ethereum",
		models.CurrencyETH,
		time.Duration(cfg.EthereumIntervalSecs)*time.Second,
		uint64(cfg.EthereumNumberOfTrackedConfirmations),
		client.LastEthTransactions,
		client.GetCurrentBlockNumber,
		publisher,
	)
}

// NewStoriqa polls STQ token operations. Chain height is the ethereum
// poller's job, so no height publishing here.
func NewStoriqa(cfg config.PollerConfig, client ethereum.Client, publisher rabbit.Publisher) *Poller {
	return New(
		"storiqa",
		models.CurrencySTQ,
		time.Duration(cfg.StoriqaIntervalSecs)*time.Second,
		uint64(cfg.StoriqaNumberOfTrackedConfirmations),
		client.LastStqTransactions,
		nil,
		publisher,
	)
}
