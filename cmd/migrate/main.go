// Command migrate manages the payment service schema: it applies and rolls
// back the SQL migrations under ./migrations and scaffolds new ones.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	"github.com/techdigits/backend/internal/infrastructure/config"
	"github.com/techdigits/backend/internal/infrastructure/logger"
	"github.com/techdigits/backend/internal/infrastructure/migration"
	"go.uber.org/zap"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(argv []string, out io.Writer) int {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	flags.SetOutput(out)
	dir := flags.String("path", "", "migrations directory (default ./migrations)")
	level := flags.String("log-level", "info", "debug, info, warn or error")
	flags.Usage = func() { printUsage(out) }
	if err := flags.Parse(argv); err != nil {
		return exitUsage
	}

	args := flags.Args()
	if len(args) == 0 {
		printUsage(out)
		return exitUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(out, "unknown command %q\n\n", args[0])
		printUsage(out)
		return exitUsage
	}
	if len(args)-1 < cmd.minArgs {
		fmt.Fprintf(out, "usage: migrate %s\n", cmd.usage)
		return exitUsage
	}

	log, err := logger.New(&logger.Config{Level: *level, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Fprintf(out, "failed to initialize logger: %v\n", err)
		return exitFail
	}
	defer func() { _ = logger.Sync(log) }()

	e := &env{dir: resolveDir(*dir), args: args[1:], out: out, log: log}
	log.Debug("Running migration command",
		zap.String("command", args[0]),
		zap.String("migrations_path", e.dir))

	if !cmd.offline {
		m, closeDB, err := connect(e.dir, log)
		if err != nil {
			log.Error("Failed to open migrator", zap.Error(err))
			return exitFail
		}
		defer closeDB()
		e.m = m
	}

	if err := cmd.run(e); err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			fmt.Fprintf(out, "usage: migrate %s\n", cmd.usage)
			return exitUsage
		}
		log.Error("Migration command failed", zap.String("command", args[0]), zap.Error(err))
		return exitFail
	}
	return exitOK
}

// resolveDir picks the migrations directory: the flag when set, otherwise
// ./migrations, otherwise the repository copy next to a built binary.
func resolveDir(flagValue string) string {
	dir := flagValue
	if dir == "" {
		dir = "migrations"
		if _, err := os.Stat(dir); err != nil {
			if exe, err := os.Executable(); err == nil {
				candidate := filepath.Join(filepath.Dir(exe), "..", "..", "migrations")
				if _, err := os.Stat(candidate); err == nil {
					dir = candidate
				}
			}
		}
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// connect opens the configured database and a migrator over it.
func connect(dir string, log *zap.Logger) (*migration.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	m, err := migration.New(db, dir, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return m, func() {
		if err := m.Close(); err != nil {
			log.Warn("Failed to close migrator", zap.Error(err))
		}
	}, nil
}
