package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Hash fields of the stats key.
const (
	fieldPublished     = "published"
	fieldBatches       = "batches"
	fieldCompliant     = "compliant"
	fieldNonCompliant  = "non_compliant"
	fieldLastSweep     = "last_sweep"
	fieldLastSweepSize = "last_sweep_size"
)

// Stats is a point-in-time view of the pipeline counters.
type Stats struct {
	Published     int64
	Batches       int64
	Compliant     int64
	NonCompliant  int64
	LastSweep     time.Time
	LastSweepSize int64
}

// Classified returns the total number of contracts with a verdict.
func (s Stats) Classified() int64 {
	return s.Compliant + s.NonCompliant
}

// StatsStore keeps pipeline counters in a single Redis hash so that every replica
// of the producer and consumer contributes to the same totals.
type StatsStore struct {
	client *Client
}

// NewStatsStore creates a stats store on top of client.
func NewStatsStore(client *Client) *StatsStore {
	return &StatsStore{client: client}
}

// RecordSweep counts one published batch of size contracts.
func (s *StatsStore) RecordSweep(ctx context.Context, size int, at time.Time) error {
	key := s.client.statsKey()
	pipe := s.client.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, fieldPublished, int64(size))
	pipe.HIncrBy(ctx, key, fieldBatches, 1)
	pipe.HSet(ctx, key,
		fieldLastSweep, at.Unix(),
		fieldLastSweepSize, size,
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record sweep: %w", err)
	}
	return nil
}

// RecordVerdicts adds classified contract counts.
func (s *StatsStore) RecordVerdicts(ctx context.Context, compliant, nonCompliant int) error {
	key := s.client.statsKey()
	pipe := s.client.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, fieldCompliant, int64(compliant))
	pipe.HIncrBy(ctx, key, fieldNonCompliant, int64(nonCompliant))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record verdicts: %w", err)
	}
	return nil
}

// Snapshot reads the current counters. Missing fields read as zero.
func (s *StatsStore) Snapshot(ctx context.Context) (Stats, error) {
	values, err := s.client.rdb.HGetAll(ctx, s.client.statsKey()).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("hgetall failed: %w", err)
	}
	return parseStats(values)
}

// Reset clears all counters.
func (s *StatsStore) Reset(ctx context.Context) error {
	return s.client.rdb.Del(ctx, s.client.statsKey()).Err()
}

func parseStats(values map[string]string) (Stats, error) {
	var st Stats
	fields := []struct {
		name string
		dst  *int64
	}{
		{fieldPublished, &st.Published},
		{fieldBatches, &st.Batches},
		{fieldCompliant, &st.Compliant},
		{fieldNonCompliant, &st.NonCompliant},
		{fieldLastSweepSize, &st.LastSweepSize},
	}
	for _, f := range fields {
		raw, ok := values[f.name]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Stats{}, fmt.Errorf("invalid %s value %q: %w", f.name, raw, err)
		}
		*f.dst = n
	}

	if raw, ok := values[fieldLastSweep]; ok {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Stats{}, fmt.Errorf("invalid %s value %q: %w", fieldLastSweep, raw, err)
		}
		st.LastSweep = time.Unix(sec, 0)
	}
	return st, nil
}
