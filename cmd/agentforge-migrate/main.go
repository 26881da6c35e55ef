package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/golang-migrate/migrate/v4"

	"github.com/kazz187/agentforge/migrations"
	"github.com/kazz187/agentforge/pkg/clog"
)

var (
	app = kingpin.New("agentforge-migrate", "Apply the agentforge Postgres schema")

	databaseURL = app.Flag("database-url", "Postgres connection URL").Envar("AGENTFORGE_POSTGRES_URL").Required().String()

	upCmd = app.Command("up", "Apply all pending migrations")

	downCmd   = app.Command("down", "Roll back migrations")
	downSteps = downCmd.Flag("steps", "Number of migrations to roll back").Default("1").Int()

	versionCmd = app.Command("version", "Show the current schema version")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	slog.SetDefault(slog.New(clog.NewTextHandler(os.Stderr)))

	m, err := migrations.New(*databaseURL)
	if err != nil {
		slog.Error("failed to open migrator", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	switch command {
	case upCmd.FullCommand():
		err = m.Up()
	case downCmd.FullCommand():
		err = m.Steps(-*downSteps)
	case versionCmd.FullCommand():
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = m.Version()
		if err == nil {
			slog.Info("schema version", "version", version, "dirty", dirty)
		}
	}
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		slog.Info("no change")
	case errors.Is(err, migrate.ErrNilVersion):
		slog.Info("no migrations applied")
	case err != nil:
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	default:
		slog.Info("done", "command", command)
	}
}
