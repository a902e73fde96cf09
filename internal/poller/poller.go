// Package poller drives the periodic block walks and hands every normalized
// record to the publisher. The three pollers share one shape and differ only
// in the stream they drive.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/blockbus/gateway/internal/errs"
	"github.com/blockbus/gateway/internal/models"
	"github.com/blockbus/gateway/internal/rabbit"
)

// TransactionSource streams the transactions of the last n blocks, newest
// window anchored at startHash or the tip when startHash is empty.
type TransactionSource func(ctx context.Context, startHash string, n uint64) <-chan models.TransactionEvent

// CurrentBlockFunc reports the chain tip height for the height queue. Nil
// disables height publishing (the token poller shares the parent chain's).
type CurrentBlockFunc func(ctx context.Context) (uint64, error)

// Poller re-walks the last windowSize blocks every interval and republishes
// each transaction, so consumers observe confirmation growth. Ticks do not
// serialize: a slow upstream never stalls the ticker.
type Poller struct {
	name         string
	currency     models.Currency
	interval     time.Duration
	windowSize   uint64
	source       TransactionSource
	currentBlock CurrentBlockFunc
	publisher    rabbit.Publisher
}

// New creates a poller.
func New(name string, currency models.Currency, interval time.Duration, windowSize uint64,
	source TransactionSource, currentBlock CurrentBlockFunc, publisher rabbit.Publisher) *Poller {
	return &Poller{
		name:         name,
		currency:     currency,
		interval:     interval,
		windowSize:   windowSize,
		source:       source,
		currentBlock: currentBlock,
		publisher:    publisher,
	}
}

// Start launches the ticker goroutine. It stops scheduling new ticks when ctx
// is cancelled; in-flight ticks are never cancelled mid-walk.
func (p *Poller) Start(ctx context.Context) {
	slog.Info("poller starting",
		"poller", p.name,
		"interval", p.interval,
		"windowSize", p.windowSize,
	)
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("poller stopped", "poller", p.name)
				return
			case <-ticker.C:
				// In-flight ticks are detached from the scheduler's context:
				// shutdown stops scheduling, it does not cancel a running walk.
				go p.tick(context.WithoutCancel(ctx))
			}
		}
	}()
}

// tick is one poll cycle. Every error is logged and swallowed: a poller never
// exits because of a data error.
func (p *Poller) tick(ctx context.Context) {
	if p.currentBlock != nil {
		height, err := p.currentBlock(ctx)
		if err != nil {
			slog.Warn("failed to fetch current block", "poller", p.name, "error", err)
		} else if err := p.publisher.PublishCurrentBlock(ctx, models.CurrentBlock{
			Currency:    p.currency,
			BlockNumber: height,
		}); err != nil {
			slog.Warn("failed to publish current block", "poller", p.name, "error", err)
		}
	}

	if err := p.PublishTransactions(ctx, "", p.windowSize); err != nil {
		if errs.IsKind(err, errs.NoReceipt) {
			// Expected near the tip; the next tick retries the window.
			slog.Debug("walk hit an unmined receipt", "poller", p.name, "error", err)
			return
		}
		slog.Error("poll tick failed", "poller", p.name, "error", err)
	}
}

// PublishTransactions drives the stream and publishes each record. A failed
// publish of a single record is logged and dropped; the stream continues. A
// stream error ends the walk and is returned.
func (p *Poller) PublishTransactions(ctx context.Context, startHash string, n uint64) error {
	published := 0
	for ev := range p.source(ctx, startHash, n) {
		if ev.Err != nil {
			return ev.Err
		}
		if err := p.publisher.Publish(ctx, []models.BlockchainTransaction{*ev.Tx}); err != nil {
			slog.Warn("failed to publish transaction",
				"poller", p.name,
				"hash", ev.Tx.Hash,
				"error", err,
			)
			continue
		}
		published++
	}
	slog.Debug("poll walk finished", "poller", p.name, "published", published)
	return nil
}
