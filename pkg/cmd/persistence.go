// Package cmd provides shared construction helpers for the statusflow
// binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/statusflowhq/statusflow/pkg/persistence"
	"github.com/statusflowhq/statusflow/pkg/persistence/memory"
	"github.com/statusflowhq/statusflow/pkg/persistence/postgresql"
)

// NewPersistence builds the store selected by the database URL scheme.
// postgres URLs get the durable backend; memory:// keeps everything
// in-process for development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch persistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "memory":
		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("unsupported database url %q: expected postgres:// or memory://", databaseURL)
	}
}

func persistenceProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	return parts[0]
}
