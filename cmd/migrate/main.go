// migrate applies the SQL migrations in the migrations/ directory, in
// order, exactly once each. Applied files are recorded in
// schema_migrations with a checksum so a modified file is caught
// instead of silently re-applied.
//
// Usage: go run ./cmd/migrate
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"pos-ledger/internal/config"
	"pos-ledger/internal/db"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// Arbitrary constant shared by every migrate invocation so concurrent
// runs against the same database serialize.
const migrationLockID = 5823417

var migrationFilePattern = regexp.MustCompile(`^(\d{3})_.+\.sql$`)

type migration struct {
	version  int
	filename string
	sql      string
	checksum string
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[CONFIG] %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[CONNECT] %v", err)
	}
	defer pool.Close()

	var locked bool
	if err := pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", migrationLockID).Scan(&locked); err != nil {
		log.Fatalf("[LOCK] %v", err)
	}
	if !locked {
		log.Fatalf("[LOCK] another migration run is in progress")
	}
	defer pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID)

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			filename   TEXT NOT NULL,
			checksum   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		log.Fatalf("[INIT] creating schema_migrations: %v", err)
	}

	migrations, err := discoverMigrations("migrations")
	if err != nil {
		log.Fatalf("[DISCOVER] %v", err)
	}
	if len(migrations) == 0 {
		log.Fatalf("[DISCOVER] no migration files found")
	}

	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		log.Fatalf("[DISCOVER] reading schema_migrations: %v", err)
	}

	for _, m := range migrations {
		if checksum, ok := applied[m.version]; ok {
			if checksum != m.checksum {
				log.Fatalf("[VERIFY] %s was modified after being applied (checksum mismatch)", m.filename)
			}
			log.Printf("[SKIP] %s already applied", m.filename)
			continue
		}
		if err := apply(ctx, pool, m); err != nil {
			log.Fatalf("[APPLY] %s: %v", m.filename, err)
		}
		log.Printf("[APPLY] %s done", m.filename)
	}

	log.Println("[DONE] migrations up to date")
}

func discoverMigrations(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]string)
	var migrations []migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		match := migrationFilePattern.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		version, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, fmt.Errorf("parsing version of %s: %w", e.Name(), err)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %03d: %s and %s", version, other, e.Name())
		}
		seen[version] = e.Name()

		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256(content)
		migrations = append(migrations, migration{
			version:  version,
			filename: e.Name(),
			sql:      string(content),
			checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })
	return migrations, nil
}

func appliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[int]string, error) {
	rows, err := pool.Query(ctx, "SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]string)
	for rows.Next() {
		var version int
		var checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, err
		}
		applied[version] = checksum
	}
	return applied, rows.Err()
}

func apply(ctx context.Context, pool *pgxpool.Pool, m migration) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, m.sql); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version, filename, checksum) VALUES ($1, $2, $3)",
		m.version, m.filename, m.checksum,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
