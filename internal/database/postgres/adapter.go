package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Lumos-Labs-HQ/flashgate/internal/builder"
	"github.com/Lumos-Labs-HQ/flashgate/internal/database/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Adapter struct {
	pool *pgxpool.Pool
}

func New() *Adapter {
	return &Adapter{}
}

func (p *Adapter) Connect(ctx context.Context, url string) error {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return fmt.Errorf("failed to parse connection URL: %w", err)
	}

	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	config.MaxConns = 10
	config.MinConns = 0
	config.MaxConnLifetime = 15 * time.Minute
	config.MaxConnIdleTime = 3 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	p.pool = pool
	return nil
}

func (p *Adapter) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *Adapter) Ping(ctx context.Context) error {
	if p.pool == nil {
		return errors.New("postgres adapter is not connected")
	}
	return p.pool.Ping(ctx)
}

func (p *Adapter) Query(ctx context.Context, stmt builder.Statement) (*common.QueryResult, error) {
	rows, err := p.pool.Query(ctx, stmt.Text, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = common.FormatValue(values[i])
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &common.QueryResult{Columns: columns, Rows: results}, nil
}

func (p *Adapter) Exec(ctx context.Context, stmt builder.Statement) (common.ExecResult, error) {
	tag, err := p.pool.Exec(ctx, stmt.Text, stmt.Args...)
	if err != nil {
		return common.ExecResult{}, fmt.Errorf("failed to execute statement: %w", err)
	}
	return common.ExecResult{RowsAffected: tag.RowsAffected()}, nil
}

// Batch runs every statement in one transaction. Nothing is committed unless
// all of them succeed.
func (p *Adapter) Batch(ctx context.Context, stmts []builder.Statement) ([]common.ExecResult, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	results := make([]common.ExecResult, 0, len(stmts))
	for i, stmt := range stmts {
		tag, err := tx.Exec(ctx, stmt.Text, stmt.Args...)
		if err != nil {
			return nil, fmt.Errorf("failed to execute statement %d: %w", i+1, err)
		}
		results = append(results, common.ExecResult{RowsAffected: tag.RowsAffected()})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return results, nil
}
