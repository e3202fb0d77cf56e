package history

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/promptlab/promptlab/internal/observability/metrics"
)

func TestInstrumentedStoreCountsWrites(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := NewInstrumentedStore(NewMemoryStore(), metrics.NewEngineMetrics(reg))

	ctx := context.Background()
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	if err := store.Upsert(ctx, testRecord("recipe-1", StateCurrent, base, `{"v":1}`)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	outgoing := testRecord("recipe-1", StateCurrent, base, `{"v":1}`)
	incoming := testRecord("recipe-1", StateCurrent, base.Add(time.Minute), `{"v":2}`)
	if err := store.SupersedeAndInsert(ctx, outgoing, incoming); err != nil {
		t.Fatalf("SupersedeAndInsert: %v", err)
	}
	if err := store.Delete(ctx, "ghost", StateCurrent); err == nil {
		t.Fatal("Delete of missing record should fail")
	}

	got := writeCounts(t, reg)
	want := map[string]float64{
		"upsert|ok":     1,
		"supersede|ok":  1,
		"delete|failed": 1,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("writes_total[%s] = %v, want %v", k, got[k], v)
		}
	}
}

func TestInstrumentedStoreNilMetricsPassThrough(t *testing.T) {
	store := NewInstrumentedStore(NewMemoryStore(), nil)

	record := testRecord("recipe-1", StateCurrent, time.Now().UTC(), `{"v":1}`)
	if err := store.Upsert(context.Background(), record); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	records, err := store.QueryByEntity(context.Background(), "recipe-1")
	if err != nil {
		t.Fatalf("QueryByEntity: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
}

// writeCounts flattens the writes_total counter into "operation|status" keys.
func writeCounts(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != "promptlab_history_writes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var operation, status string
			for _, label := range m.GetLabel() {
				switch label.GetName() {
				case "operation":
					operation = label.GetValue()
				case "status":
					status = label.GetValue()
				}
			}
			out[operation+"|"+status] = m.GetCounter().GetValue()
		}
	}
	return out
}
