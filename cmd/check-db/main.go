// Package main is a diagnostic tool for testing database connectivity. It connects
// with the panel's configuration, prints the migration version and a row count for
// each core table, and exits non-zero on any failure so it can gate deployments on a
// reachable, migrated database.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/dpc-platform/dpc-admin/internal/config"
	"github.com/dpc-platform/dpc-admin/internal/db"
)

var tables = []string{
	"organizations",
	"registered_organizations",
	"fhir_endpoints",
	"users",
	"organization_user_assignments",
	"internal_users",
	"audit_logs",
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 1, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	fmt.Printf("Connected to %s@%s:%d/%s\n", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)
	if dirty {
		log.Fatal("Schema is dirty; fix the failed migration before deploying")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("\n=== TABLES ===")
	for _, table := range tables {
		var count int64
		// #nosec G202 -- table names come from the fixed list above
		if err := database.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			log.Fatalf("Query on %s failed: %v", table, err)
		}
		fmt.Printf("%-32s %d\n", table, count)
	}
}
