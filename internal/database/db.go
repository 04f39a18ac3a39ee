package database

import (
    "context"
    "database/sql"
    "fmt"
    "time"

    _ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
    db, err := sql.Open("mysql", DSN(user, pass, host, port, name))
    if err != nil {
        return nil, err
    }

    // Pool settings. The archive writes once per ended session, so a small
    // pool is plenty.
    db.SetMaxOpenConns(10)
    db.SetMaxIdleConns(5)
    db.SetConnMaxLifetime(30 * time.Minute)

    // Ping with timeout
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := db.PingContext(ctx); err != nil {
        _ = db.Close()
        return nil, err
    }
    return db, nil
}

// DSN builds the go-sql-driver/mysql data source name.
func DSN(user, pass, host, port, name string) string {
    auth := user
    if pass != "" {
        auth = fmt.Sprintf("%s:%s", user, pass)
    }
    // parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
    return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
        auth, host, port, name)
}

// schema holds the archive tables. Statements are idempotent so
// EnsureSchema can run on every start.
var schema = []string{
    `CREATE TABLE IF NOT EXISTS occupancy_reports (
        id          CHAR(36)    NOT NULL PRIMARY KEY,
        session_id  CHAR(36)    NOT NULL,
        started_at  DATETIME(3) NOT NULL,
        ended_at    DATETIME(3) NOT NULL,
        created_at  TIMESTAMP   NOT NULL DEFAULT CURRENT_TIMESTAMP,
        KEY idx_reports_ended_at (ended_at)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
    `CREATE TABLE IF NOT EXISTS occupancy_report_rows (
        report_id     CHAR(36)     NOT NULL,
        position      INT UNSIGNED NOT NULL,
        seat_label    VARCHAR(64)  NOT NULL,
        total_seconds DOUBLE       NOT NULL,
        PRIMARY KEY (report_id, position),
        CONSTRAINT fk_rows_report FOREIGN KEY (report_id)
            REFERENCES occupancy_reports (id) ON DELETE CASCADE
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the report archive tables when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
    for _, stmt := range schema {
        if _, err := db.ExecContext(ctx, stmt); err != nil {
            return fmt.Errorf("ensure schema: %w", err)
        }
    }
    return nil
}
