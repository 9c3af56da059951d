// Command migrate applies the schema explicitly. Production deployments run
// this before rollout; the server skips automigration outside development.
package main

import (
	"log"

	"opsdesk/internal/config"
	"opsdesk/internal/database"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}

	if err := db.AutoMigrate(database.MigratedModels()...); err != nil {
		return err
	}

	log.Println("schema migration applied")
	return nil
}
