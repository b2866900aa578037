package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var migrationPath, databaseURL, direction string
	var steps int
	flag.StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres connection URL")
	flag.StringVar(&migrationPath, "migrations-path", "./migrations", "directory holding the migration files")
	flag.StringVar(&direction, "direction", "up", "up or down")
	flag.IntVar(&steps, "steps", 0, "number of steps to migrate; 0 applies all")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	if databaseURL == "" {
		log.Error("database URL is required")
		os.Exit(2)
	}

	m, err := migrate.New("file://"+migrationPath, databaseURL)
	if err != nil {
		log.Error("open migrations", "err", err)
		os.Exit(1)
	}
	defer m.Close()

	switch {
	case steps != 0 && direction == "down":
		err = m.Steps(-steps)
	case steps != 0:
		err = m.Steps(steps)
	case direction == "down":
		err = m.Down()
	case direction == "up":
		err = m.Up()
	default:
		log.Error("unknown direction", "direction", direction)
		os.Exit(2)
	}
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("no migrations to apply")
			return
		}
		log.Error("migrate failed", "err", err)
		os.Exit(1)
	}

	version, dirty, _ := m.Version()
	log.Info("migrations applied", "version", version, "dirty", dirty)
}
