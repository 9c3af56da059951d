// Command main runs the database seeder for the fulfillment engine.
package main

import (
	"flag"
	"log"

	"opsdesk/internal/config"
	"opsdesk/internal/database"
	"opsdesk/internal/seed"
)

func main() {
	// Parse command line flags
	numRules := flag.Int("rules", 6, "Number of routing rules to create")
	numItems := flag.Int("items", 12, "Number of inventory items to create")
	numRequests := flag.Int("requests", 25, "Number of requests to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")
	log.Printf("Target: %d rules, %d items, %d requests, clean=%v\n",
		*numRules, *numItems, *numRequests, *shouldClean)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := seed.Seed(db, seed.Options{
		NumRules:    *numRules,
		NumItems:    *numItems,
		NumRequests: *numRequests,
		ShouldClean: *shouldClean,
	}); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✨ All done! Your database is now populated with demo data.")
}
