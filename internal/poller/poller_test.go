package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/blockbus/gateway/internal/errs"
	"github.com/blockbus/gateway/internal/models"
)

// fakePublisher records published batches; an optional failHash makes one
// record's publish fail.
type fakePublisher struct {
	mu            sync.Mutex
	published     []models.BlockchainTransaction
	currentBlocks []models.CurrentBlock
	failHash      string
}

func (p *fakePublisher) Publish(ctx context.Context, txs []models.BlockchainTransaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tx := range txs {
		if tx.Hash == p.failHash {
			return errs.New(errs.BrokerUnavailable, "publish refused")
		}
	}
	p.published = append(p.published, txs...)
	return nil
}

func (p *fakePublisher) PublishCurrentBlock(ctx context.Context, block models.CurrentBlock) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentBlocks = append(p.currentBlocks, block)
	return nil
}

func (p *fakePublisher) snapshot() []models.BlockchainTransaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.BlockchainTransaction(nil), p.published...)
}

func streamOf(events ...models.TransactionEvent) TransactionSource {
	return func(ctx context.Context, startHash string, n uint64) <-chan models.TransactionEvent {
		out := make(chan models.TransactionEvent)
		go func() {
			defer close(out)
			for _, ev := range events {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out
	}
}

func txEvent(hash string) models.TransactionEvent {
	return models.TransactionEvent{Tx: &models.BlockchainTransaction{
		Hash:     hash,
		Currency: models.CurrencyBTC,
	}}
}

func TestPublishTransactionsPublishesEachRecord(t *testing.T) {
	pub := &fakePublisher{}
	p := New("test", models.CurrencyBTC, time.Second, 3,
		streamOf(txEvent("a"), txEvent("b"), txEvent("c")), nil, pub)

	if err := p.PublishTransactions(context.Background(), "", 3); err != nil {
		t.Fatalf("PublishTransactions() error = %v", err)
	}
	got := pub.snapshot()
	if len(got) != 3 {
		t.Fatalf("published %d records, want 3", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].Hash != want {
			t.Errorf("published[%d].Hash = %s, want %s", i, got[i].Hash, want)
		}
	}
}

func TestPublishTransactionsContinuesPastPublishFailure(t *testing.T) {
	pub := &fakePublisher{failHash: "b"}
	p := New("test", models.CurrencyBTC, time.Second, 3,
		streamOf(txEvent("a"), txEvent("b"), txEvent("c")), nil, pub)

	if err := p.PublishTransactions(context.Background(), "", 3); err != nil {
		t.Fatalf("PublishTransactions() error = %v", err)
	}
	got := pub.snapshot()
	if len(got) != 2 || got[0].Hash != "a" || got[1].Hash != "c" {
		t.Fatalf("published = %+v, want a and c", got)
	}
}

func TestPublishTransactionsReturnsStreamError(t *testing.T) {
	streamErr := errs.New(errs.NoReceipt, "tip tx unmined")
	pub := &fakePublisher{}
	p := New("test", models.CurrencyETH, time.Second, 3,
		streamOf(txEvent("a"), models.TransactionEvent{Err: streamErr}), nil, pub)

	err := p.PublishTransactions(context.Background(), "", 3)
	if !errs.IsKind(err, errs.NoReceipt) {
		t.Fatalf("error = %v, want NoReceipt", err)
	}
	if got := pub.snapshot(); len(got) != 1 {
		t.Errorf("published %d records before error, want 1", len(got))
	}
}

func TestStartTicksAndPublishesCurrentBlock(t *testing.T) {
	pub := &fakePublisher{}
	currentBlock := func(ctx context.Context) (uint64, error) { return 777, nil }
	p := New("test", models.CurrencyETH, 10*time.Millisecond, 1,
		streamOf(txEvent("a")), currentBlock, pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	deadline := time.After(2 * time.Second)
	for {
		pub.mu.Lock()
		ticked := len(pub.currentBlocks) >= 2 && len(pub.published) >= 2
		pub.mu.Unlock()
		if ticked {
			break
		}
		select {
		case <-deadline:
			t.Fatal("poller did not tick in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.currentBlocks[0].BlockNumber != 777 || pub.currentBlocks[0].Currency != models.CurrencyETH {
		t.Errorf("currentBlocks[0] = %+v", pub.currentBlocks[0])
	}
}

func TestStartStopsSchedulingOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	p := New("test", models.CurrencyBTC, 5*time.Millisecond, 1,
		streamOf(txEvent("a")), nil, pub)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	before := len(pub.snapshot())
	time.Sleep(30 * time.Millisecond)
	after := len(pub.snapshot())
	if after != before {
		t.Errorf("poller kept publishing after cancel: %d -> %d", before, after)
	}
}

func TestTickSwallowsErrors(t *testing.T) {
	// A failing source must not panic or kill anything; tick logs and returns.
	pub := &fakePublisher{}
	failing := func(ctx context.Context, startHash string, n uint64) <-chan models.TransactionEvent {
		out := make(chan models.TransactionEvent, 1)
		out <- models.TransactionEvent{Err: errors.New("upstream exploded")}
		close(out)
		return out
	}
	p := New("test", models.CurrencyBTC, time.Second, 1, failing, nil, pub)
	p.tick(context.Background())
}
