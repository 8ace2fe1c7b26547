// Package main applies and inspects the registry schema migrations.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/welldanyogia/colancer-registry/internal/config"
	"github.com/welldanyogia/colancer-registry/internal/logger"
)

// Version is set at build time
var Version = "dev"

const usage = `Usage: migrate [options] <command> [args]

Commands:
  up [N]       Apply all or N pending migrations
  down [N]     Roll back all or N migrations
  goto V       Migrate to version V
  force V      Mark version V as applied without running it
  version      Print the current migration version
  create NAME  Create an empty up/down migration pair

Connection settings come from DB_HOST, DB_PORT, DB_USER, DB_PASSWORD,
DB_NAME and DB_SSLMODE, the same variables the server reads.
`

func main() {
	var (
		path    = flag.String("path", envOr("MIGRATIONS_PATH", "migrations"), "Path to migrations directory")
		timeout = flag.Duration("timeout", 5*time.Minute, "Lock and connect timeout")
		version = flag.Bool("version", false, "Print version and exit")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *version {
		fmt.Printf("migrate version %s\n", Version)
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}

	log := logger.New(logger.DefaultConfig())
	cfg := config.Load()

	r := &runner{
		dsn:     cfg.Database.DSN(),
		path:    *path,
		timeout: *timeout,
		log:     log,
	}
	if err := r.run(args[0], args[1:]); err != nil {
		log.Error("Migration command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

type runner struct {
	dsn     string
	path    string
	timeout time.Duration
	log     *slog.Logger
}

func (r *runner) run(cmd string, args []string) error {
	if cmd == "create" {
		if len(args) < 1 {
			return errors.New("create requires a migration name")
		}
		return r.create(args[0])
	}

	m, err := r.open()
	if err != nil {
		return err
	}
	defer m.Close()

	from, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read version: %w", err)
	}

	switch cmd {
	case "version":
		if errors.Is(err, migrate.ErrNilVersion) {
			r.log.Info("No migrations have been applied yet")
			return nil
		}
		r.log.Info("Current migration version", "version", from, "dirty", dirty)
		return nil
	case "up":
		n, err := optionalInt(args)
		if err != nil {
			return err
		}
		if n > 0 {
			return r.finish(m, from, m.Steps(n))
		}
		return r.finish(m, from, m.Up())
	case "down":
		n, err := optionalInt(args)
		if err != nil {
			return err
		}
		if n > 0 {
			return r.finish(m, from, m.Steps(-n))
		}
		return r.finish(m, from, m.Down())
	case "goto":
		if len(args) < 1 {
			return errors.New("goto requires a version number")
		}
		v, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return r.finish(m, from, m.Migrate(uint(v)))
	case "force":
		if len(args) < 1 {
			return errors.New("force requires a version number")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		if err := m.Force(v); err != nil {
			return fmt.Errorf("force failed: %w", err)
		}
		r.log.Warn("Version forced, no migrations were run", "version", v)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// finish logs the version transition of a completed migration
func (r *runner) finish(m *migrate.Migrate, from uint, err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		r.log.Info("No migrations to apply", "version", from)
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	to, _, _ := m.Version()
	r.log.Info("Migration completed", "from", from, "to", to)
	return nil
}

func (r *runner) open() (*migrate.Migrate, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	db, err := sql.Open("pgx", r.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "schema_migrations"})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	abs, err := filepath.Abs(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+abs, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.LockTimeout = r.timeout
	return m, nil
}

// create writes the next numbered up/down pair
func (r *runner) create(name string) error {
	entries, err := os.ReadDir(r.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	next := 1
	for _, entry := range entries {
		var n int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &n); err == nil && n >= next {
			next = n + 1
		}
	}

	if err := os.MkdirAll(r.path, 0o755); err != nil {
		return fmt.Errorf("failed to create migrations directory: %w", err)
	}

	for _, dir := range []string{"up", "down"} {
		file := filepath.Join(r.path, fmt.Sprintf("%03d_%s.%s.sql", next, name, dir))
		body := fmt.Sprintf("-- %s (%s)\n", name, dir)
		if err := os.WriteFile(file, []byte(body), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", file, err)
		}
		r.log.Info("Created migration file", "file", file)
	}
	return nil
}

func optionalInt(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number of steps: %s", args[0])
	}
	return n, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
