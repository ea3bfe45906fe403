// internal/service/loyalty/domain/port/noop.go
package port

import (
	"context"

	"stampcard/internal/service/loyalty/domain"
)

// NoopLocker 不做任何跨实例协调，单实例部署时使用
type NoopLocker struct{}

func (NoopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

// NoopPublisher 丢弃所有事件，未配置 Kafka 时使用
type NoopPublisher struct{}

func (NoopPublisher) PublishScan(context.Context, domain.ScanRecorded) error { return nil }
