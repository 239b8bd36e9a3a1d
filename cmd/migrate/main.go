package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"chatsend/internal/migrations"
	"chatsend/internal/security"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

func main() {
	dbPath := flag.String("db", "./chatsend.db", "Path to the outbox database file")
	status := flag.Bool("status", false, "Print the schema version and pending migrations without applying them")
	create := flag.Bool("create", false, "Create the database file if it does not exist")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(context.Background(), *dbPath, *status, *create, logger); err != nil {
		logger.Fatalf("Migration failed: %v", err)
	}
}

func run(ctx context.Context, dbPath string, statusOnly, create bool, logger *logrus.Logger) error {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return fmt.Errorf("invalid database path: %w", err)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) && !create {
		return fmt.Errorf("database file not found: %s (use -create to initialise it)", dbPath)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	current, err := migrations.CurrentVersion(ctx, db)
	if err != nil {
		return err
	}

	if statusOnly {
		all, err := migrations.List()
		if err != nil {
			return err
		}
		pending := 0
		for _, m := range all {
			if m.Version > current {
				pending++
				fmt.Printf("pending  %03d_%s\n", m.Version, m.Name)
			}
		}
		fmt.Printf("schema version %d, %d pending\n", current, pending)
		return nil
	}

	applied, err := migrations.Apply(ctx, db)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		logger.WithField("version", current).Info("Schema is up to date")
		return nil
	}
	logger.WithField("applied", applied).Info("Migrations applied successfully")
	return nil
}
