package downloads

import "time"

// dateLayout is how calendar dates are rendered into SQL parameters. Both
// PostgreSQL and SQLite compare DATE columns against this form.
const dateLayout = "2006-01-02"

// VersionDownload is one raw download counter row: the number of downloads
// a version received on a given date. The download endpoint increments
// Downloads; this engine owns Counted and Processed.
type VersionDownload struct {
	ID        int64
	VersionID int64
	Downloads int64
	Counted   int64
	Date      time.Time
	Processed bool
}
