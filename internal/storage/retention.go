package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
)

// RetentionPolicy bounds the stored runs. Zero fields disable their limit.
type RetentionPolicy struct {
	MaxAge   time.Duration
	MaxBytes datasize.ByteSize
}

type EvictionReport struct {
	Evicted        []string
	FreedBytes     int64
	Remaining      int
	RemainingBytes int64
}

// Evict deletes runs older than MaxAge relative to now, then the oldest
// remaining runs until their total size fits MaxBytes.
func Evict(ctx context.Context, store Store, policy RetentionPolicy, now time.Time) (EvictionReport, error) {
	runs, err := store.ListRuns(ctx)
	if err != nil {
		return EvictionReport{}, fmt.Errorf("list runs: %w", err)
	}
	sortRuns(runs)

	var report EvictionReport
	evict := func(id string, size int64) error {
		if _, err := store.DeleteRun(ctx, id); err != nil {
			return fmt.Errorf("delete run %s: %w", id, err)
		}
		report.Evicted = append(report.Evicted, id)
		report.FreedBytes += size
		return nil
	}

	kept := runs[:0]
	for _, run := range runs {
		if policy.MaxAge > 0 && now.Sub(run.CreatedAt) > policy.MaxAge {
			if err := evict(run.ID, run.SizeBytes); err != nil {
				return report, err
			}
			continue
		}
		kept = append(kept, run)
	}

	var total int64
	for _, run := range kept {
		total += run.SizeBytes
	}
	limit := int64(policy.MaxBytes.Bytes())
	for policy.MaxBytes > 0 && total > limit && len(kept) > 0 {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		oldest := kept[0]
		if err := evict(oldest.ID, oldest.SizeBytes); err != nil {
			return report, err
		}
		total -= oldest.SizeBytes
		kept = kept[1:]
	}

	report.Remaining = len(kept)
	report.RemainingBytes = total
	return report, nil
}
