package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stampcard/internal/pkg/logger"
	"stampcard/internal/pkg/mq"
	"stampcard/internal/service/loyalty/domain"
)

// MessageReader 是 kafka.Reader 中消费者用到的部分
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Broadcaster 把消息推送给某个商户的看板
type Broadcaster interface {
	Broadcast(ctx context.Context, businessID string, payload []byte) error
}

// ScanConsumer 是一个驱动适配器，它监听扫码事件并推送给对应商户的看板
type ScanConsumer struct {
	reader MessageReader
	out    Broadcaster
	tracer trace.Tracer
}

func NewScanConsumer(reader MessageReader, out Broadcaster, tracer trace.Tracer) *ScanConsumer {
	return &ScanConsumer{reader: reader, out: out, tracer: tracer}
}

// Run 阻塞消费直到 ctx 结束
func (a *ScanConsumer) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Msg("scan consumer started")
	for {
		// 使用 FetchMessage 而不是 ReadMessage，处理完成后再手动提交
		msg, err := a.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("scan consumer shutting down")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not fetch message, retrying")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		a.processMessage(ctx, msg)

		if err := a.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit message")
		}
	}
}

// processMessage 解析事件并推送。看板推送是尽力而为，无法解析的消息直接跳过
func (a *ScanConsumer) processMessage(parent context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parent, msg.Headers)
	ctx, span := a.tracer.Start(ctx, "scan-feed.ProcessScanEvent",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
		))
	defer span.End()

	var ev domain.ScanRecorded
	if err := json.Unmarshal(msg.Value, &ev); err != nil || ev.BusinessID == "" {
		span.SetStatus(codes.Error, "malformed scan event")
		logger.Ctx(ctx).Warn().Err(err).Int64("offset", msg.Offset).Msg("skipping malformed scan event")
		return
	}
	span.SetAttributes(attribute.String("business.id", ev.BusinessID), attribute.String("scan.type", ev.Type))

	payload, err := json.Marshal(feedMessage{Kind: "scan", Scan: ev})
	if err != nil {
		span.RecordError(err)
		return
	}
	if err := a.out.Broadcast(ctx, ev.BusinessID, payload); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Warn().Err(err).Str("event_id", ev.EventID).Msg("scan event not pushed")
	}
}

// feedMessage 是推送给看板的消息
type feedMessage struct {
	Kind string              `json:"kind"`
	Scan domain.ScanRecorded `json:"scan"`
}
