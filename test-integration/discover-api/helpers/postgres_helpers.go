package helpers

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/stacklok/site-discovery-server/database"
)

// PostgresInstance is a migrated PostgreSQL container
type PostgresInstance struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	container *postgres.PostgresContainer
}

// StartPostgres starts a PostgreSQL container and applies all migrations
func StartPostgres(ctx context.Context) (*PostgresInstance, error) {
	pg := &PostgresInstance{
		User:     "discover",
		Password: "discover",
		Database: "discover",
	}

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(pg.Database),
		postgres.WithUsername(pg.User),
		postgres.WithPassword(pg.Password),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}
	pg.container = container

	host, err := container.Host(ctx)
	if err != nil {
		_ = pg.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = pg.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}
	pg.Host = host
	pg.Port = port.Int()

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pg.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}
	if err := database.MigrateUp(connString); err != nil {
		_ = pg.Terminate(ctx)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return pg, nil
}

// Terminate stops and removes the container
func (p *PostgresInstance) Terminate(ctx context.Context) error {
	if p.container == nil {
		return nil
	}
	return p.container.Terminate(ctx)
}
