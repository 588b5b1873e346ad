package downloads

import (
	"context"
	"fmt"
)

// addToTotal applies a page's accumulated delta to the registry-wide
// download counter. Runs after all per-row work so a failure here rolls the
// page back without leaving aggregates out of step with counted/processed.
func addToTotal(ctx context.Context, q Querier, delta int64) error {
	if _, err := q.ExecContext(ctx,
		`UPDATE registry_metadata SET total_downloads = total_downloads + $1`,
		delta,
	); err != nil {
		return fmt.Errorf("failed to update total downloads: %w", err)
	}
	return nil
}

// TotalDownloads reads the registry-wide download counter.
func TotalDownloads(ctx context.Context, q Querier) (int64, error) {
	var total int64
	if err := q.QueryRowContext(ctx,
		`SELECT total_downloads FROM registry_metadata`,
	).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to read total downloads: %w", err)
	}
	return total, nil
}
