package downloads

import (
	"context"
	"fmt"
)

// fetchPage returns the next page of unprocessed counter rows with id
// greater than max, ascending, at most limit rows. An empty result means
// the backlog is drained.
func fetchPage(ctx context.Context, q Querier, max int64, limit int) ([]VersionDownload, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, version_id, downloads, counted, date, processed
		FROM version_downloads
		WHERE processed = FALSE AND id > $1
		ORDER BY id ASC
		LIMIT $2`,
		max, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query version_downloads: %w", err)
	}
	defer rows.Close()

	var page []VersionDownload
	for rows.Next() {
		var d VersionDownload
		if err := rows.Scan(&d.ID, &d.VersionID, &d.Downloads, &d.Counted, &d.Date, &d.Processed); err != nil {
			return nil, fmt.Errorf("failed to scan version_downloads row: %w", err)
		}
		page = append(page, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read version_downloads rows: %w", err)
	}

	return page, nil
}
