package occupancy

import (
	"encoding/csv"
	"io"

	"github.com/iliyamo/seat-occupancy/internal/model"
)

// CSVHeader is the header row written by WriteCSV.
var CSVHeader = []string{"Seat Label", "Accumulated Time (s)"}

// Export turns a registry snapshot into report rows, one per seat, in
// snapshot order.  Occupied seats include their open interval up to now.
func Export(snapshot []SeatSnapshot, now float64) []model.ReportRow {
	rows := make([]model.ReportRow, 0, len(snapshot))
	for _, s := range snapshot {
		rows = append(rows, model.ReportRow{
			Label:        s.Region.Label,
			TotalSeconds: TotalDuration(s.State, now),
		})
	}
	return rows
}

// WriteCSV writes rows as CSV with a header line and two-decimal totals.
func WriteCSV(w io.Writer, rows []model.ReportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Label, FormatSeconds(r.TotalSeconds)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
