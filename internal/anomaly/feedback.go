package anomaly

import (
	"context"
	"time"

	"github.com/inboxguard/inboxguard/internal/core"
)

// Adjustment bounds. False positives pull a dimension's contribution down
// harder than confirmations push it up, so a noisy dimension quiets quickly.
const (
	fpPenalty     = 3
	tpReward      = 1
	minAdjustment = -20
	maxAdjustment = 5
	minTotal      = -35
	maxTotal      = 10
)

// AdjustmentTable maps each dimension to the signed delta derived from the
// tenant's feedback log. Tables are recomputed from the full log, never
// mutated in place, so the same log always yields the same table.
type AdjustmentTable struct {
	TenantID    string                        `json:"tenant_id"`
	ByDimension map[core.AnomalyDimension]int `json:"by_dimension"`
	RecordCount int                           `json:"record_count"`
	BuiltAt     time.Time                     `json:"built_at"`
}

// BuildAdjustmentTable folds a tenant's feedback log into per-dimension
// deltas.
func BuildAdjustmentTable(tenantID string, records []core.FeedbackRecord) AdjustmentTable {
	table := AdjustmentTable{
		TenantID:    tenantID,
		ByDimension: make(map[core.AnomalyDimension]int),
		RecordCount: len(records),
		BuiltAt:     time.Now().UTC(),
	}

	raw := make(map[core.AnomalyDimension]int)
	for _, rec := range records {
		delta := 0
		switch rec.Kind {
		case core.FeedbackFalsePositive:
			delta = -fpPenalty
		case core.FeedbackTruePositive:
			delta = tpReward
		default:
			continue
		}
		for _, dim := range rec.AnomalyTypes {
			raw[dim] += delta
		}
	}

	for dim, delta := range raw {
		table.ByDimension[dim] = clampInt(delta, minAdjustment, maxAdjustment)
	}
	return table
}

// Adjustment returns the composite delta for the dimensions that fired.
func (t AdjustmentTable) Adjustment(dims []core.AnomalyDimension) int {
	total := 0
	for _, dim := range dims {
		total += t.ByDimension[dim]
	}
	return clampInt(total, minTotal, maxTotal)
}

// Adjuster reads a tenant's feedback log and derives score adjustments from
// it. The log is append-only; every call rebuilds the table from scratch.
type Adjuster struct {
	store core.FeedbackStore
}

// NewAdjuster wraps a feedback store.
func NewAdjuster(store core.FeedbackStore) *Adjuster {
	return &Adjuster{store: store}
}

// TableFor builds the current adjustment table for a tenant.
func (a *Adjuster) TableFor(ctx context.Context, tenantID string) (AdjustmentTable, error) {
	records, err := a.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return AdjustmentTable{}, err
	}
	return BuildAdjustmentTable(tenantID, records), nil
}

// AdjustmentFor returns the signed delta to apply to a composite score given
// the dimensions that fired.
func (a *Adjuster) AdjustmentFor(ctx context.Context, tenantID string, dims []core.AnomalyDimension) (int, error) {
	table, err := a.TableFor(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return table.Adjustment(dims), nil
}

// Record appends one feedback entry to the tenant's log.
func (a *Adjuster) Record(ctx context.Context, rec core.FeedbackRecord) error {
	return a.store.Append(ctx, rec)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
