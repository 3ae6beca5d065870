package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Repositories accept NoTX to run on the
// pool directly.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one database transaction, passing the
// infra-defined handle (pgx.Tx for Postgres) as tx. Commit happens only when
// fn returns nil.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
