// Package postgres persists credit charges for completed tasks. It owns the
// pgx connection pool, the goose schema migrations embedded in the binary,
// and CreditLedger, an event handler that writes one charge row per
// completed task.
package postgres
