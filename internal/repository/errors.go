// Package repository holds the MySQL data access for archived occupancy
// reports.  Sentinel errors defined here let handlers map failures to
// HTTP status codes without inspecting driver errors.
package repository

import "errors"

// ErrReportNotFound is returned when no archived report matches the id.
// Handlers should translate this into an HTTP 404 response.
var ErrReportNotFound = errors.New("report not found")
