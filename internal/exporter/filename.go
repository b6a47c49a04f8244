package exporter

import (
	"fmt"
	"time"
)

// Filename builds the export filename for a run, e.g.
// google_trends_data_12months_20240115_093042.csv.
func Filename(months int, ts time.Time) string {
	return fmt.Sprintf("google_trends_data_%dmonths_%s.csv", months, ts.Format("20060102_150405"))
}
