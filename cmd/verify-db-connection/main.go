package main

import (
	"database/sql"
	"fmt"
	"log"

	"tasset-backend/internal/config"

	_ "github.com/lib/pq"
)

// Checks that the database is reachable and that the unique indexes the
// duplicate-submission guards depend on actually exist. Run after migrations
// and before pointing traffic at a fresh environment.
func main() {
	fmt.Println("🔍 Verifying database connection and unique indexes...")

	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sqlDB, err := sql.Open("postgres", config.AppConfig.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	checks := []struct {
		table string
		index string
	}{
		{"mint_requests", "idx_mint_tx_hash"},
		{"redeem_requests", "idx_redeem_burn_tx_hash"},
	}

	failed := false
	for _, check := range checks {
		var isUnique sql.NullBool
		err := sqlDB.QueryRow(`
			SELECT indisunique
			FROM pg_index i
			JOIN pg_class c ON c.oid = i.indexrelid
			JOIN pg_class t ON t.oid = i.indrelid
			WHERE t.relname = $1 AND c.relname = $2
		`, check.table, check.index).Scan(&isUnique)

		switch {
		case err == sql.ErrNoRows:
			fmt.Printf("❌ %s.%s: index missing\n", check.table, check.index)
			failed = true
		case err != nil:
			log.Fatalf("Failed to query index %s: %v", check.index, err)
		case !isUnique.Valid || !isUnique.Bool:
			fmt.Printf("❌ %s.%s: index exists but is not unique\n", check.table, check.index)
			failed = true
		default:
			fmt.Printf("✅ %s.%s: unique index present\n", check.table, check.index)
		}
	}

	if failed {
		log.Fatal("❌ Schema verification failed; run migrations before serving traffic")
	}
	fmt.Println("✅ Database verification passed")
}
