package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/layer-3/gamebridge/migrations"
	"github.com/sirupsen/logrus"
)

type migratorConfig struct {
	DSN string `env:"PG_DSN,required"`
}

func main() {
	down := flag.Bool("down", false, "roll back every migration instead of applying them")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := migrateAll(*down); err != nil {
		log.WithError(err).Error("migration run failed")
		os.Exit(1)
	}

	log.Info("migration run finished successfully")
}

func migrateAll(down bool) error {
	cfg := new(migratorConfig)
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	//nolint:errcheck
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	if down {
		return migrations.Down(db)
	}

	return migrations.Up(db)
}
