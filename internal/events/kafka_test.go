package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/disclosure-cli/internal/model"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func sampleTrade() model.CanonicalTrade {
	ticker := "NVDA"
	return model.CanonicalTrade{
		SourceChamber:   model.ChamberA,
		PoliticianRef:   42,
		TransactionDate: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		DisclosureDate:  time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC),
		Ticker:          &ticker,
		AssetType:       model.AssetStock,
		TransactionType: model.TransactionBuy,
		AmountMin:       100100,
		AmountMax:       1500000,
		DedupKey:        "abc123",
		RunID:           "run-1",
	}
}

func TestPublishTrade(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w)
	p.now = func() time.Time { return time.Date(2024, 3, 19, 6, 30, 0, 0, time.UTC) }

	require.NoError(t, p.PublishTrade(context.Background(), sampleTrade()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "abc123", string(msg.Key))
	assert.Equal(t, "trade.ingested", string(msg.Headers[0].Value))
	assert.Equal(t, "chamber_a", string(msg.Headers[1].Value))

	var ev TradeIngested
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, "NVDA", ev.Ticker)
	assert.Equal(t, "2024-03-11", ev.TransactionDate)
	assert.Equal(t, "2024-03-18", ev.DisclosureDate)
	assert.Equal(t, int64(42), ev.PoliticianRef)
	assert.Equal(t, model.TransactionBuy, ev.TransactionType)
	assert.Equal(t, "run-1", ev.RunID)
}

func TestPublishTrade_NoTicker(t *testing.T) {
	w := &fakeWriter{}
	tr := sampleTrade()
	tr.Ticker = nil
	require.NoError(t, NewKafkaPublisher(w).PublishTrade(context.Background(), tr))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &raw))
	assert.NotContains(t, raw, "ticker")
}

func TestPublishTrade_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	err := NewKafkaPublisher(w).PublishTrade(context.Background(), sampleTrade())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events: publish trade abc123")
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewKafkaPublisher(w).Close())
	assert.True(t, w.closed)
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter([]string{"localhost:9092"}, "trade.ingested")
	assert.Equal(t, "trade.ingested", w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}
