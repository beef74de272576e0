package repository

import (
	"context"
	"time"

	"VolPull/internal/domain/models"
	drepo "VolPull/internal/domain/repository"
	pkgkafka "VolPull/pkg/kafka"
	"VolPull/pkg/util"
)

// indexEvent is the wire shape of a published index value.
type indexEvent struct {
	Symbol       string  `json:"symbol"`
	TradeDate    string  `json:"trade_date"`
	IndexType    string  `json:"index_type"`
	Value        float64 `json:"value"`
	VarianceNear float64 `json:"variance_near"`
	VarianceNext float64 `json:"variance_next"`
	TNear        float64 `json:"t_near"`
	TNext        float64 `json:"t_next"`
	ComputedAt   int64   `json:"computed_at"`
}

// KafkaIndexPublisher forwards computed index values to Kafka, keyed by
// symbol and index type.
type KafkaIndexPublisher struct {
	producer *pkgkafka.Producer
}

func NewKafkaIndexPublisher(producer *pkgkafka.Producer) *KafkaIndexPublisher {
	return &KafkaIndexPublisher{producer: producer}
}

func (p *KafkaIndexPublisher) PublishIndex(ctx context.Context, v models.IndexValue) error {
	computed := v.UpdatedAt
	if computed.IsZero() {
		computed = time.Now().UTC()
	}
	return p.producer.Publish(ctx, []byte(v.Symbol+":"+string(v.IndexType)), indexEvent{
		Symbol:       v.Symbol,
		TradeDate:    util.FormatDate(v.TradeDate),
		IndexType:    string(v.IndexType),
		Value:        v.Value,
		VarianceNear: v.VarianceNear,
		VarianceNext: v.VarianceNext,
		TNear:        v.TNear,
		TNext:        v.TNext,
		ComputedAt:   computed.UnixMilli(),
	})
}

func (p *KafkaIndexPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher drops everything; used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishIndex(context.Context, models.IndexValue) error { return nil }
func (NopPublisher) Close() error                                          { return nil }

var (
	_ drepo.IndexPublisher = (*KafkaIndexPublisher)(nil)
	_ drepo.IndexPublisher = NopPublisher{}
)
