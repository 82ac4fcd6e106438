package reason

import (
	"context"
	"math"
	"time"

	"oracle-arena/internal/store"
)

const (
	statsDefaultLimit = 5000
	statsMaxLimit     = 20000
	statsDefaultSpan  = 30 * 24 * time.Hour
)

type BucketStats struct {
	Total         int      `json:"total"`
	Valid         int      `json:"valid"`
	AccuracyAll   *float64 `json:"accuracy_all"`
	AccuracyValid *float64 `json:"accuracy_valid"`
}

type Stats struct {
	Since          time.Time               `json:"since"`
	Until          time.Time               `json:"until"`
	TotalEvaluated int                     `json:"total_evaluated"`
	TotalValid     int                     `json:"total_valid"`
	AccuracyAll    *float64                `json:"accuracy_all"`
	AccuracyValid  *float64                `json:"accuracy_valid"`
	AvgDeltaPct    *float64                `json:"avg_delta_pct"`
	AvgAbsDeltaPct *float64                `json:"avg_abs_delta_pct"`
	ByTimeframe    map[string]*BucketStats `json:"by_timeframe"`
	ByPattern      map[string]*BucketStats `json:"by_pattern"`
}

// StatsQuery describes the aggregation window. Zero times default to the
// last 30 days ending now (or ending Until when only Until is set).
type StatsQuery struct {
	AgentID string
	Since   time.Time
	Until   time.Time
	Limit   int
}

func (q StatsQuery) normalize() StatsQuery {
	if q.Until.IsZero() {
		q.Until = time.Now().UTC()
	}
	if q.Since.IsZero() {
		q.Since = q.Until.Add(-statsDefaultSpan)
	}
	if q.Limit <= 0 {
		q.Limit = statsDefaultLimit
	}
	if q.Limit > statsMaxLimit {
		q.Limit = statsMaxLimit
	}
	return q
}

type bucketAcc struct {
	total        int
	valid        int
	correctAll   int
	correctValid int
}

func (b *bucketAcc) add(valid, correct bool) {
	b.total++
	if valid {
		b.valid++
		if correct {
			b.correctValid++
		}
	}
	if correct {
		b.correctAll++
	}
}

func (b *bucketAcc) stats() *BucketStats {
	out := &BucketStats{Total: b.total, Valid: b.valid}
	if b.total > 0 {
		out.AccuracyAll = ratio(b.correctAll, b.total)
	}
	if b.valid > 0 {
		out.AccuracyValid = ratio(b.correctValid, b.valid)
	}
	return out
}

// ComputeStats aggregates reason-rule accuracy over evaluated judgments
// in the window, capped at the row limit.
func ComputeStats(ctx context.Context, st *store.Store, q StatsQuery) (*Stats, error) {
	q = q.normalize()
	rows, err := st.ListReasonStatRows(ctx, q.AgentID, q.Since, q.Until, q.Limit)
	if err != nil {
		return nil, err
	}

	overall := bucketAcc{}
	byTimeframe := map[string]*bucketAcc{}
	byPattern := map[string]*bucketAcc{}
	var sumDelta, sumAbsDelta float64
	for _, r := range rows {
		valid := r.PatternHolds != nil && *r.PatternHolds == 1
		correct := r.Correct == 1
		overall.add(valid, correct)
		sumDelta += r.DeltaPct
		sumAbsDelta += math.Abs(r.DeltaPct)
		bucket(byTimeframe, r.Timeframe).add(valid, correct)
		bucket(byPattern, r.Pattern).add(valid, correct)
	}

	out := &Stats{
		Since:          q.Since,
		Until:          q.Until,
		TotalEvaluated: overall.total,
		TotalValid:     overall.valid,
		ByTimeframe:    map[string]*BucketStats{},
		ByPattern:      map[string]*BucketStats{},
	}
	if overall.total > 0 {
		out.AccuracyAll = ratio(overall.correctAll, overall.total)
		out.AvgDeltaPct = avg(sumDelta, overall.total)
		out.AvgAbsDeltaPct = avg(sumAbsDelta, overall.total)
	}
	if overall.valid > 0 {
		out.AccuracyValid = ratio(overall.correctValid, overall.valid)
	}
	for k, b := range byTimeframe {
		out.ByTimeframe[k] = b.stats()
	}
	for k, b := range byPattern {
		out.ByPattern[k] = b.stats()
	}
	return out, nil
}

func bucket(m map[string]*bucketAcc, key string) *bucketAcc {
	b := m[key]
	if b == nil {
		b = &bucketAcc{}
		m[key] = b
	}
	return b
}

func ratio(n, d int) *float64 {
	v := float64(n) / float64(d)
	return &v
}

func avg(sum float64, n int) *float64 {
	v := sum / float64(n)
	return &v
}
