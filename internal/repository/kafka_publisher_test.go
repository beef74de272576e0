package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"VolPull/internal/domain/models"
	pkgkafka "VolPull/pkg/kafka"

	"github.com/segmentio/kafka-go"
)

type captureWriter struct {
	msgs []kafka.Message
}

func (c *captureWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error { return nil }

func TestKafkaIndexPublisherPayload(t *testing.T) {
	w := &captureWriter{}
	pub := NewKafkaIndexPublisher(pkgkafka.NewProducerWithWriter(w, "volpull.index_values", "snappy"))
	v := models.IndexValue{
		Symbol: "SPX", TradeDate: day("2024-01-02"), IndexType: models.IndexVIX, Value: 13.2,
		UpdatedAt: time.Unix(1700000000, 0),
	}
	if err := pub.PublishIndex(context.Background(), v); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "SPX:VIX" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	var ev indexEvent
	if err := json.Unmarshal(w.msgs[0].Value, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.TradeDate != "2024-01-02" || ev.Value != 13.2 || ev.ComputedAt != 1700000000000 {
		t.Fatalf("unexpected event %+v", ev)
	}
}
