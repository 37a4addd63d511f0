package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/techdigits/backend/internal/infrastructure/migration"
	"go.uber.org/zap"
)

// env is what a command runs against. m is nil for offline commands.
type env struct {
	dir  string
	args []string
	out  io.Writer
	log  *zap.Logger
	m    *migration.Migrator
}

type command struct {
	usage   string
	summary string
	minArgs int
	// offline commands only touch the migrations directory.
	offline bool
	run     func(e *env) error
}

// usageError reports malformed command arguments.
type usageError struct{ msg string }

func (u usageError) Error() string { return u.msg }

// commandOrder is the order of the usage listing.
var commandOrder = []string{"up", "down", "step", "goto", "version", "force", "drop", "create", "list", "validate"}

var commands = map[string]command{
	"up": {
		usage:   "up",
		summary: "apply all pending migrations",
		run:     func(e *env) error { return e.m.Up() },
	},
	"down": {
		usage:   "down",
		summary: "roll back every migration",
		run:     func(e *env) error { return e.m.Down() },
	},
	"step": {
		usage:   "step <n>",
		summary: "apply n migrations, negative n rolls back",
		minArgs: 1,
		run: func(e *env) error {
			n, err := strconv.Atoi(e.args[0])
			if err != nil || n == 0 {
				return usageError{"step count must be a non-zero integer"}
			}
			return e.m.Steps(n)
		},
	},
	"goto": {
		usage:   "goto <version>",
		summary: "migrate up or down to version",
		minArgs: 1,
		run: func(e *env) error {
			v, err := strconv.ParseUint(e.args[0], 10, 32)
			if err != nil {
				return usageError{"version must be a non-negative integer"}
			}
			return e.m.GoTo(uint(v))
		},
	},
	"version": {
		usage:   "version",
		summary: "print the applied version",
		run: func(e *env) error {
			v, dirty, err := e.m.Version()
			if err != nil {
				return err
			}
			if v == 0 {
				fmt.Fprintln(e.out, "no migrations applied")
				return nil
			}
			state := "clean"
			if dirty {
				state = "dirty"
			}
			fmt.Fprintf(e.out, "version %d (%s)\n", v, state)
			return nil
		},
	},
	"force": {
		usage:   "force <version>",
		summary: "record version as applied without running it",
		minArgs: 1,
		run: func(e *env) error {
			v, err := strconv.Atoi(e.args[0])
			if err != nil {
				return usageError{"version must be an integer"}
			}
			e.log.Warn("Forcing migration version", zap.Int("version", v))
			return e.m.Force(v)
		},
	},
	"drop": {
		usage:   "drop -confirm",
		summary: "drop every object in the database",
		run: func(e *env) error {
			if !hasFlag(e.args, "confirm") {
				return usageError{"drop needs -confirm"}
			}
			return e.m.Drop()
		},
	},
	"create": {
		usage:   "create <name> [description]",
		summary: "scaffold the next numbered migration pair",
		minArgs: 1,
		offline: true,
		run: func(e *env) error {
			mf, err := migration.CreateMigration(e.dir, e.args[0], strings.Join(e.args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "created %s\ncreated %s\n", mf.UpPath, mf.DownPath)
			return nil
		},
	},
	"list": {
		usage:   "list",
		summary: "list the migrations on disk",
		offline: true,
		run: func(e *env) error {
			names, err := migration.ListMigrations(e.dir)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(e.out, name)
			}
			return nil
		},
	},
	"validate": {
		usage:   "validate",
		summary: "check versions are unique and every migration has a down file",
		offline: true,
		run: func(e *env) error {
			if err := migration.Validate(e.dir); err != nil {
				return err
			}
			fmt.Fprintln(e.out, "migrations are valid")
			return nil
		},
	},
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == "-"+name || a == "--"+name {
			return true
		}
	}
	return false
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: migrate [-path dir] [-log-level level] <command> [args]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	for _, name := range commandOrder {
		c := commands[name]
		fmt.Fprintf(out, "  %-28s %s\n", c.usage, c.summary)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "The database comes from TDS_DATABASE_HOST, TDS_DATABASE_PORT, TDS_DATABASE_USER,")
	fmt.Fprintln(out, "TDS_DATABASE_PASSWORD, TDS_DATABASE_DBNAME and TDS_DATABASE_SSLMODE.")
}
