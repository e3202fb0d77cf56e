package history

import (
	"context"

	"github.com/promptlab/promptlab/internal/observability/metrics"
)

// InstrumentedStore decorates a Store with reconciliation-write counters so
// every backend and every caller reports through one seam. A nil metrics
// handle makes it a transparent pass-through.
type InstrumentedStore struct {
	inner   Store
	metrics *metrics.EngineMetrics
}

// NewInstrumentedStore wraps the given store.
func NewInstrumentedStore(inner Store, m *metrics.EngineMetrics) *InstrumentedStore {
	if inner == nil {
		panic("history: inner store cannot be nil")
	}
	return &InstrumentedStore{inner: inner, metrics: m}
}

var _ Store = (*InstrumentedStore)(nil)

func (s *InstrumentedStore) Upsert(ctx context.Context, record *Record) error {
	err := s.inner.Upsert(ctx, record)
	s.metrics.ObserveHistoryWrite("upsert", writeStatus(err))
	return err
}

func (s *InstrumentedStore) QueryByEntity(ctx context.Context, entityID string) ([]*Record, error) {
	return s.inner.QueryByEntity(ctx, entityID)
}

func (s *InstrumentedStore) SupersedeAndInsert(ctx context.Context, outgoing, incoming *Record) error {
	err := s.inner.SupersedeAndInsert(ctx, outgoing, incoming)
	s.metrics.ObserveHistoryWrite("supersede", writeStatus(err))
	return err
}

func (s *InstrumentedStore) Delete(ctx context.Context, entityID string, state State) error {
	err := s.inner.Delete(ctx, entityID, state)
	s.metrics.ObserveHistoryWrite("delete", writeStatus(err))
	return err
}

func (s *InstrumentedStore) List(ctx context.Context) ([]*Record, error) {
	return s.inner.List(ctx)
}

func writeStatus(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
