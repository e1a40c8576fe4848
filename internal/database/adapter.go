package database

import (
	"context"

	"github.com/Lumos-Labs-HQ/flashgate/internal/builder"
	"github.com/Lumos-Labs-HQ/flashgate/internal/database/common"
)

// Store executes statements produced by the builder. Implementations must be
// safe for concurrent use.
type Store interface {
	Connect(ctx context.Context, url string) error
	Close() error
	Ping(ctx context.Context) error

	// Query runs a statement that returns rows.
	Query(ctx context.Context, stmt builder.Statement) (*common.QueryResult, error)
	// Exec runs a mutation and reports the affected row count.
	Exec(ctx context.Context, stmt builder.Statement) (common.ExecResult, error)
	// Batch runs all statements atomically: all commit or none do.
	Batch(ctx context.Context, stmts []builder.Statement) ([]common.ExecResult, error)
}
