package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/blockbus/gateway/internal/config"
	"github.com/blockbus/gateway/internal/errs"
	"github.com/blockbus/gateway/internal/models"
)

// Publisher is the capability the pollers depend on. Tests supply fakes.
type Publisher interface {
	Publish(ctx context.Context, txs []models.BlockchainTransaction) error
	PublishCurrentBlock(ctx context.Context, block models.CurrentBlock) error
}

// TransactionPublisher routes records onto the blockchain_transactions
// exchange with per-currency routing keys and persistent delivery. Topology
// is declared once per established channel.
type TransactionPublisher struct {
	source ChannelSource

	mu         sync.Mutex
	declaredOn WireChannel
}

var _ Publisher = (*TransactionPublisher)(nil)

// NewTransactionPublisher creates a publisher over a session.
func NewTransactionPublisher(source ChannelSource) *TransactionPublisher {
	return &TransactionPublisher{source: source}
}

// channel obtains a valid channel and makes sure the topology exists on it.
func (p *TransactionPublisher) channel(ctx context.Context) (WireChannel, error) {
	ch, err := p.source.Channel(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if ch == p.declaredOn {
		return ch, nil
	}
	if err := declareTopology(ch); err != nil {
		p.source.Invalidate()
		return nil, errs.Wrap(err, errs.BrokerUnavailable, "failed to declare topology").
			WithSource(errs.SourceBroker).
			WithContext(errs.CtxRabbitChannel)
	}
	p.declaredOn = ch
	return ch, nil
}

// Publish sends each record with routing key "<currency>_transactions". The
// call site treats it as fire-and-forget; delivery durability comes from the
// persistent delivery mode and the durable queues.
func (p *TransactionPublisher) Publish(ctx context.Context, txs []models.BlockchainTransaction) error {
	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}

	for i := range txs {
		tx := &txs[i]
		routingKey := fmt.Sprintf("%s_transactions", tx.Currency)
		if err := p.publishJSON(ctx, ch, routingKey, tx); err != nil {
			return err
		}
		slog.Debug("published transaction",
			"routingKey", routingKey,
			"hash", tx.Hash,
			"confirmations", tx.Confirmations,
		)
	}
	return nil
}

// PublishCurrentBlock sends the chain height with routing key
// "<currency>_current_block".
func (p *TransactionPublisher) PublishCurrentBlock(ctx context.Context, block models.CurrentBlock) error {
	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	routingKey := fmt.Sprintf("%s_current_block", block.Currency)
	if err := p.publishJSON(ctx, ch, routingKey, block); err != nil {
		return err
	}
	slog.Debug("published current block", "routingKey", routingKey, "blockNumber", block.BlockNumber)
	return nil
}

func (p *TransactionPublisher) publishJSON(ctx context.Context, ch WireChannel, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errs.Wrap(err, errs.Internal, "failed to encode publish payload").WithContext(errs.CtxJson)
	}
	err = ch.PublishWithContext(ctx, config.RabbitExchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		p.source.Invalidate()
		return errs.Wrap(err, errs.BrokerUnavailable, fmt.Sprintf("publish to %s failed", routingKey)).
			WithSource(errs.SourceBroker)
	}
	return nil
}

// declareTopology declares the durable exchange, the five durable queues and
// their bindings. Routing keys equal queue names.
func declareTopology(ch WireChannel) error {
	if err := ch.ExchangeDeclare(config.RabbitExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	queues := []string{
		config.RabbitQueueBTCTransactions,
		config.RabbitQueueETHTransactions,
		config.RabbitQueueSTQTransactions,
		config.RabbitQueueBTCCurrentBlock,
		config.RabbitQueueETHCurrentBlock,
	}
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return err
		}
		if err := ch.QueueBind(q, q, config.RabbitExchange, false, nil); err != nil {
			return err
		}
	}
	return nil
}
