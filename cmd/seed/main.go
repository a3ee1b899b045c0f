// Command seed provisions the default roles and permissions. It is idempotent.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/maingoo/auth-service/config"
	"github.com/maingoo/auth-service/internal/observability"
	"github.com/maingoo/auth-service/repositories"
	"github.com/maingoo/auth-service/repositories/postgres"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	dbCfg, err := config.NewDatabaseConfig()
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger("info", "console")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := postgres.NewDB(*dbCfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		return err
	}

	factory := postgres.NewRepositoryFactoryFromDB(db, logger)
	catalog := repositories.DefaultCatalog()
	if err := repositories.Seed(ctx, factory.GetTransactionManager(), factory.NewRepositories(), catalog); err != nil {
		return err
	}

	logger.Info("seed completed",
		zap.Int("roles", len(catalog.Roles)),
		zap.Int("permissions", len(catalog.Permissions)))
	return nil
}
