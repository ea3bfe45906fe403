package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"stampcard/internal/pkg/mq"
	"stampcard/internal/service/loyalty/domain"
)

// KafkaScanPublisher 把扫码事件写入 Kafka，按商户 ID 分区以保证同一商户内有序
type KafkaScanPublisher struct {
	writer *kafka.Writer
}

func NewKafkaScanPublisher(writer *kafka.Writer) *KafkaScanPublisher {
	return &KafkaScanPublisher{writer: writer}
}

func (p *KafkaScanPublisher) PublishScan(ctx context.Context, ev domain.ScanRecorded) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "kafka: marshal scan event")
	}
	return errors.Wrap(mq.ProduceMessage(ctx, p.writer, []byte(ev.BusinessID), value), "kafka: publish scan event")
}

func (p *KafkaScanPublisher) Close() error {
	return p.writer.Close()
}
