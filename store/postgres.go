package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresFinder reads records from the table named after the model.
type PostgresFinder struct {
	db Querier
}

func NewPostgresFinder(db Querier) *PostgresFinder {
	return &PostgresFinder{db: db}
}

// NewPostgres creates a connection pool.
func NewPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse database url")
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

func lookupQuery(model, field string) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE %s = $1 LIMIT 1",
		pgx.Identifier{TableName(model)}.Sanitize(),
		pgx.Identifier{field}.Sanitize(),
	)
}

func (f *PostgresFinder) FindByField(ctx context.Context, model, field, value string) (Record, error) {
	rows, err := f.db.Query(ctx, lookupQuery(model, field), value)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s by %s", model, field)
	}

	row, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s record", model)
	}
	return Record(row), nil
}
