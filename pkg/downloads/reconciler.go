package downloads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrIntegrity reports a broken data invariant: a counter that moved
// backwards, or a version with no owning crate. Integrity faults abort the
// run instead of being retried.
var ErrIntegrity = errors.New("download counter integrity violation")

// pageResult accumulates one page's reconciliation outcome.
type pageResult struct {
	maxID  int64
	delta  int64
	frozen int
}

// reconcilePage folds one page of raw counters into the version, crate, and
// daily aggregates. All writes go through tx; the caller commits or rolls
// back the page as a unit.
func (e *Engine) reconcilePage(ctx context.Context, tx Querier, page []VersionDownload, cutoff time.Time) (pageResult, error) {
	var res pageResult
	for _, d := range page {
		if d.ID > res.maxID {
			res.maxID = d.ID
		}
		if d.Counted == d.Downloads {
			continue
		}
		if d.Downloads < d.Counted {
			return res, fmt.Errorf("%w: version_downloads row %d has downloads=%d < counted=%d",
				ErrIntegrity, d.ID, d.Downloads, d.Counted)
		}
		delta := d.Downloads - d.Counted

		crateID, err := e.crateID(ctx, tx, d.VersionID)
		if err != nil {
			return res, err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE versions SET downloads = downloads + $1 WHERE id = $2`,
			delta, d.VersionID,
		); err != nil {
			return res, fmt.Errorf("failed to update downloads for version %d: %w", d.VersionID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE crates SET downloads = downloads + $1 WHERE id = $2`,
			delta, crateID,
		); err != nil {
			return res, fmt.Errorf("failed to update downloads for crate %d: %w", crateID, err)
		}

		if err := upsertDailyDownloads(ctx, tx, crateID, d.Date, delta); err != nil {
			return res, err
		}

		// Freeze only when the row is fully caught up at write time, so an
		// external increment landing between our read and this write stays
		// pending for the next run instead of being silently dropped. The
		// live row may hold more downloads than our snapshot, so the frozen
		// verdict comes back from the database, not from page data.
		pastCutoff := d.Date.Before(cutoff)
		var frozen bool
		if err := tx.QueryRowContext(ctx, `
			UPDATE version_downloads
			SET counted = counted + $1,
			    processed = ($2 AND counted + $1 >= downloads)
			WHERE id = $3
			RETURNING processed`,
			delta, pastCutoff, d.ID,
		).Scan(&frozen); err != nil {
			return res, fmt.Errorf("failed to mark version_downloads row %d counted: %w", d.ID, err)
		}

		if frozen {
			res.frozen++
		}
		res.delta += delta
	}
	return res, nil
}

// upsertDailyDownloads adds delta to the crate's daily counter, creating
// the (crate, date) row on its first download of the day.
func upsertDailyDownloads(ctx context.Context, tx Querier, crateID int64, date time.Time, delta int64) error {
	day := date.Format(dateLayout)

	result, err := tx.ExecContext(ctx,
		`UPDATE crate_downloads SET downloads = downloads + $1 WHERE crate_id = $2 AND date = $3`,
		delta, crateID, day,
	)
	if err != nil {
		return fmt.Errorf("failed to update daily downloads for crate %d: %w", crateID, err)
	}
	updated, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read daily downloads update result for crate %d: %w", crateID, err)
	}
	if updated == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO crate_downloads (crate_id, date, downloads) VALUES ($1, $2, $3)`,
			crateID, day, delta,
		); err != nil {
			return fmt.Errorf("failed to insert daily downloads for crate %d: %w", crateID, err)
		}
	}
	return nil
}

// crateID resolves the crate owning a version. The mapping is immutable, so
// hits are served from an LRU shared across runs.
func (e *Engine) crateID(ctx context.Context, q Querier, versionID int64) (int64, error) {
	if id, ok := e.crateIDs.Get(versionID); ok {
		if e.metrics != nil {
			e.metrics.CrateCacheHitsTotal.Inc()
		}
		return id, nil
	}
	if e.metrics != nil {
		e.metrics.CrateCacheMissesTotal.Inc()
	}

	var id int64
	err := q.QueryRowContext(ctx, `SELECT crate_id FROM versions WHERE id = $1`, versionID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: version %d does not exist", ErrIntegrity, versionID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve crate for version %d: %w", versionID, err)
	}

	e.crateIDs.Add(versionID, id)
	return id, nil
}
