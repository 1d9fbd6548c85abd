// Package events publishes trade events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// TradeIngested is the payload of a trade.ingested event.
type TradeIngested struct {
	DedupKey        string                `json:"dedup_key"`
	RunID           string                `json:"run_id,omitempty"`
	Chamber         model.Chamber         `json:"chamber"`
	PoliticianRef   int64                 `json:"politician_ref"`
	TransactionDate string                `json:"transaction_date"`
	DisclosureDate  string                `json:"disclosure_date"`
	Ticker          string                `json:"ticker,omitempty"`
	AssetType       model.AssetType       `json:"asset_type"`
	TransactionType model.TransactionType `json:"transaction_type"`
	AmountMin       int64                 `json:"amount_min"`
	AmountMax       int64                 `json:"amount_max"`
	IngestedAt      time.Time             `json:"ingested_at"`
}

// Writer is the subset of *kafka.Writer used by the publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher implements ingest.Publisher.
type KafkaPublisher struct {
	w   Writer
	now func() time.Time
}

// NewKafkaWriter builds a writer for topic. Messages are keyed by dedup key
// so redeliveries of one trade land on one partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// NewKafkaPublisher wraps w.
func NewKafkaPublisher(w Writer) *KafkaPublisher {
	return &KafkaPublisher{w: w, now: time.Now}
}

// PublishTrade writes one trade.ingested event.
func (p *KafkaPublisher) PublishTrade(ctx context.Context, t model.CanonicalTrade) error {
	ev := TradeIngested{
		DedupKey:        t.DedupKey,
		RunID:           t.RunID,
		Chamber:         t.SourceChamber,
		PoliticianRef:   t.PoliticianRef,
		TransactionDate: t.TransactionDate.Format(time.DateOnly),
		DisclosureDate:  t.DisclosureDate.Format(time.DateOnly),
		Ticker:          t.TickerOrEmpty(),
		AssetType:       t.AssetType,
		TransactionType: t.TransactionType,
		AmountMin:       t.AmountMin,
		AmountMax:       t.AmountMax,
		IngestedAt:      p.now().UTC(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "events: marshal trade")
	}
	msg := kafka.Message{
		Key:   []byte(t.DedupKey),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("trade.ingested")},
			{Key: "chamber", Value: []byte(t.SourceChamber)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return eris.Wrapf(err, "events: publish trade %s", t.DedupKey)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return eris.Wrap(p.w.Close(), "events: close writer")
}
