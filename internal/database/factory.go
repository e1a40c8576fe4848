package database

import (
	"context"
	"fmt"

	"github.com/Lumos-Labs-HQ/flashgate/internal/builder"
	"github.com/Lumos-Labs-HQ/flashgate/internal/database/postgres"
	"github.com/Lumos-Labs-HQ/flashgate/internal/database/sqlite"
)

func NewAdapter(provider string) (Store, error) {
	dialect, err := builder.ParseDialect(provider)
	if err != nil {
		return nil, err
	}
	switch dialect {
	case builder.Postgres:
		return postgres.New(), nil
	default:
		return sqlite.New(), nil
	}
}

// Open creates the adapter for provider and connects it.
func Open(ctx context.Context, provider, url string) (Store, error) {
	store, err := NewAdapter(provider)
	if err != nil {
		return nil, err
	}
	if err := store.Connect(ctx, url); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return store, nil
}
