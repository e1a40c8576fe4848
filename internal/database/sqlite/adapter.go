package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Lumos-Labs-HQ/flashgate/internal/builder"
	"github.com/Lumos-Labs-HQ/flashgate/internal/database/common"
	_ "github.com/mattn/go-sqlite3"
)

type Adapter struct {
	db   *sql.DB
	path string
}

func New() *Adapter {
	return &Adapter{}
}

func (s *Adapter) Connect(ctx context.Context, url string) error {
	dbPath := strings.TrimPrefix(url, "sqlite://")
	if !strings.Contains(dbPath, "?") {
		dbPath += "?_journal_mode=WAL&_busy_timeout=5000"
	}

	s.path = strings.TrimPrefix(url, "sqlite://")
	if idx := strings.Index(s.path, "?"); idx > 0 {
		s.path = s.path[:idx]
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to SQLite database %s: %w", s.path, err)
	}

	s.db = db
	return nil
}

func (s *Adapter) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Adapter) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("sqlite adapter is not connected")
	}
	return s.db.PingContext(ctx)
}

func (s *Adapter) Query(ctx context.Context, stmt builder.Statement) (*common.QueryResult, error) {
	rows, err := s.db.QueryContext(ctx, stmt.Text, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
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

func (s *Adapter) Exec(ctx context.Context, stmt builder.Statement) (common.ExecResult, error) {
	res, err := s.db.ExecContext(ctx, stmt.Text, stmt.Args...)
	if err != nil {
		return common.ExecResult{}, fmt.Errorf("failed to execute statement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return common.ExecResult{}, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return common.ExecResult{RowsAffected: affected}, nil
}

// Batch runs every statement in one transaction. Nothing is committed unless
// all of them succeed.
func (s *Adapter) Batch(ctx context.Context, stmts []builder.Statement) ([]common.ExecResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	results := make([]common.ExecResult, 0, len(stmts))
	for i, stmt := range stmts {
		res, err := tx.ExecContext(ctx, stmt.Text, stmt.Args...)
		if err != nil {
			return nil, fmt.Errorf("failed to execute statement %d: %w", i+1, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read affected rows: %w", err)
		}
		results = append(results, common.ExecResult{RowsAffected: affected})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return results, nil
}
