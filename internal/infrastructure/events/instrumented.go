package events

import (
	"context"

	"workhub/internal/core/domain"
	"workhub/internal/core/ports"
	"workhub/internal/infrastructure/monitoring"
)

// InstrumentedPublisher counts publishes by kind and result.
type InstrumentedPublisher struct {
	next    ports.EventPublisher
	metrics *monitoring.PrometheusCollector
}

func NewInstrumentedPublisher(next ports.EventPublisher, metrics *monitoring.PrometheusCollector) *InstrumentedPublisher {
	return &InstrumentedPublisher{next: next, metrics: metrics}
}

func (p *InstrumentedPublisher) Publish(ctx context.Context, event domain.Event) error {
	err := p.next.Publish(ctx, event)
	p.metrics.RecordEventPublished(string(event.Kind), err)
	return err
}
