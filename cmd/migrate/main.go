// Command migrate bootstraps the document catalog schema: raw SQL for the
// pgvector extension, then gorm AutoMigrate for the relational tables, then
// raw SQL for the vector column, the generated tsvector column, and their
// indexes.
//
// Grounded on the teacher's scripts/create_tables.go (raw database/sql +
// lib/pq, schema-then-table-then-index ordering, fmt.Println progress
// lines) generalized with gorm AutoMigrate for the relational tables and
// other_examples' docmgmt/schema.go pattern for the vector DDL.
package main

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/doccat/server/config"
	"github.com/doccat/server/models"
	"github.com/doccat/server/store"
)

func main() {
	fmt.Println("doccat migrate: bootstrapping document catalog schema...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping database: %v", err)
	}
	fmt.Println("connected to database")

	fmt.Println("enabling pgvector extension...")
	if _, err := db.Exec(store.ExtensionDDL); err != nil {
		log.Fatalf("create extension: %v", err)
	}

	fmt.Println("running gorm auto-migration for relational tables...")
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	if err != nil {
		log.Fatalf("open gorm: %v", err)
	}
	if err := gdb.AutoMigrate(
		&models.Document{},
		&models.TaxonomyTerm{},
		&models.TaxonomySynonym{},
		&models.DocumentTaxonomyMap{},
		&models.SearchQuery{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	fmt.Println("adding vector column and indexes...")
	statements := []string{
		fmt.Sprintf(store.VectorColumnDDLTemplate, cfg.AI.VectorDim),
		store.FullTextColumnDDL,
		fmt.Sprintf(store.VectorIndexDDLTemplate, 100),
		store.FullTextIndexDDL,
		store.KeywordsIndexDDL,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("exec %q: %v", stmt, err)
		}
	}

	fmt.Println("schema ready")
}
