// Command migrate applies the postgres schema migrations under
// migrations/postgres, grounded on the teacher's cmd/migrate/main.go: a
// flag-based CLI wrapping golang-migrate/migrate/v4. This gateway has a
// single schema rather than the teacher's per-module (saas/umkm/farmasi)
// layout, so the -module flag is dropped; sqlite deployments rely on
// gormstore.Open's AutoMigrate instead, since golang-migrate's own
// postgres driver is the only one this command wires in.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/chatgw/chatgateway/internal/config"
)

func main() {
	var command string
	flag.StringVar(&command, "cmd", "up", "Migration command (up, down, version, force)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("migrate only supports DB_DRIVER=postgres (got %q); sqlite schemas are managed by AutoMigrate", cfg.Database.Driver)
	}

	const migrationPath = "file://migrations/postgres"
	log.Printf("running migrations from %s against %s", migrationPath, maskDSN(cfg.Database.DSN))

	m, err := migrate.New(migrationPath, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("failed to create migrate instance: %v", err)
	}
	defer m.Close()

	switch command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("migration up failed: %v", err)
		}
		log.Println("migrations up completed")
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("migration down failed: %v", err)
		}
		log.Println("migrations down completed")
	case "version":
		version, dirty, err := m.Version()
		if err != nil && err != migrate.ErrNilVersion {
			log.Fatalf("failed to read version: %v", err)
		}
		log.Printf("current version: %d (dirty: %t)", version, dirty)
	case "force":
		args := flag.Args()
		if len(args) < 1 {
			log.Fatal("force requires a version number argument")
		}
		var forceVersion int
		if _, err := fmt.Sscanf(args[0], "%d", &forceVersion); err != nil {
			log.Fatalf("invalid version %q: %v", args[0], err)
		}
		if err := m.Force(forceVersion); err != nil {
			log.Fatalf("force failed: %v", err)
		}
		log.Printf("forced version to %d", forceVersion)
	default:
		log.Fatalf("unknown command %q (use: up, down, version, force)", command)
	}
}

// maskDSN hides credentials in a DSN before it reaches the log.
func maskDSN(dsn string) string {
	if len(dsn) < 20 {
		return "***"
	}
	return dsn[:12] + "***" + dsn[len(dsn)-8:]
}
