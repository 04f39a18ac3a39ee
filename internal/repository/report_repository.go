package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/iliyamo/seat-occupancy/internal/model"
)

// ReportRepo archives the final reports of ended monitoring sessions.  A
// report is stored as one occupancy_reports row plus one
// occupancy_report_rows row per seat, keyed by its position so registry
// order survives the round trip.
type ReportRepo struct {
    db *sql.DB
}

// NewReportRepo returns a ReportRepo bound to the given database.
func NewReportRepo(db *sql.DB) *ReportRepo { return &ReportRepo{db: db} }

// ReportSummary is one entry of the recent reports listing.
type ReportSummary struct {
    ID        string    `json:"id"`
    SessionID string    `json:"session_id"`
    StartedAt time.Time `json:"started_at"`
    EndedAt   time.Time `json:"ended_at"`
    Seats     int       `json:"seats"`
}

// SaveReport inserts the report and its rows in one transaction.
func (r *ReportRepo) SaveReport(ctx context.Context, rep *model.Report) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    defer func() { _ = tx.Rollback() }()

    const qReport = `INSERT INTO occupancy_reports (id, session_id, started_at, ended_at) VALUES (?, ?, ?, ?)`
    if _, err := tx.ExecContext(ctx, qReport, rep.ID, rep.SessionID, rep.StartedAt.UTC(), rep.EndedAt.UTC()); err != nil {
        return fmt.Errorf("insert report: %w", err)
    }

    if len(rep.Rows) > 0 {
        // All rows go in a single statement.
        var sb strings.Builder
        sb.WriteString(`INSERT INTO occupancy_report_rows (report_id, position, seat_label, total_seconds) VALUES `)
        args := make([]interface{}, 0, len(rep.Rows)*4)
        for i, row := range rep.Rows {
            if i > 0 {
                sb.WriteString(",")
            }
            sb.WriteString("(?, ?, ?, ?)")
            args = append(args, rep.ID, i, row.Label, row.TotalSeconds)
        }
        if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
            return fmt.Errorf("insert report rows: %w", err)
        }
    }
    return tx.Commit()
}

// GetByID loads an archived report with its rows.  It returns
// ErrReportNotFound when no report has the id.
func (r *ReportRepo) GetByID(ctx context.Context, id string) (*model.Report, error) {
    const q = `SELECT id, session_id, started_at, ended_at FROM occupancy_reports WHERE id = ?`
    var rep model.Report
    if err := r.db.QueryRowContext(ctx, q, id).Scan(&rep.ID, &rep.SessionID, &rep.StartedAt, &rep.EndedAt); err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrReportNotFound
        }
        return nil, err
    }

    const qRows = `SELECT seat_label, total_seconds FROM occupancy_report_rows WHERE report_id = ? ORDER BY position`
    rows, err := r.db.QueryContext(ctx, qRows, id)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    rep.Rows = []model.ReportRow{}
    for rows.Next() {
        var row model.ReportRow
        if err := rows.Scan(&row.Label, &row.TotalSeconds); err != nil {
            return nil, err
        }
        rep.Rows = append(rep.Rows, row)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return &rep, nil
}

// ListRecent returns up to limit reports, newest first.  Non-positive
// limits fall back to 20; limits above 100 are capped.
func (r *ReportRepo) ListRecent(ctx context.Context, limit int) ([]ReportSummary, error) {
    if limit <= 0 {
        limit = 20
    }
    if limit > 100 {
        limit = 100
    }
    const q = `SELECT r.id, r.session_id, r.started_at, r.ended_at, COUNT(rr.position)
        FROM occupancy_reports r
        LEFT JOIN occupancy_report_rows rr ON rr.report_id = r.id
        GROUP BY r.id, r.session_id, r.started_at, r.ended_at
        ORDER BY r.ended_at DESC
        LIMIT ?`
    rows, err := r.db.QueryContext(ctx, q, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []ReportSummary{}
    for rows.Next() {
        var s ReportSummary
        if err := rows.Scan(&s.ID, &s.SessionID, &s.StartedAt, &s.EndedAt, &s.Seats); err != nil {
            return nil, err
        }
        out = append(out, s)
    }
    return out, rows.Err()
}
