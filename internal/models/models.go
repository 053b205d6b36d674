// Package models defines the entities of the CRHoy ingestion pipeline and
// the store methods used to read and write them. Every store method takes a
// Queryer so the caller controls whether an operation runs against the pool
// directly or inside a transaction, so stores compose into one-transaction
// units of work.
package models

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Queryer is satisfied by both *pgxpool.Pool and pgx.Tx, letting store
// methods compose into single-transaction units of work without caring
// which one they were handed.
type Queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Relation is the classifier's judgment of how an article relates to the
// target audience's locus of interest.
type Relation string

const (
	RelationDirect        Relation = "DIRECT"
	RelationIndirect      Relation = "INDIRECT"
	RelationNotApplicable Relation = "NOT_APPLICABLE"
)

// UnknownSmartCategory is the distinguished, never-deleted fallback
// category used when LLM analysis fails.
const UnknownSmartCategory = "__unknown__"

// isNoRows reports whether err is pgx's "no rows in result set" sentinel,
// used throughout the stores to turn an empty lookup into a zero value
// instead of an error.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
