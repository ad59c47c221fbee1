package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"strings"
	"thesis_tracker/tracker/migrations"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func postgresDsn(uri string) string {
	parts, err := url.Parse(uri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func main() {
	dbUri := flag.String("db_uri", "", "Postgres database URI")
	sqlitePath := flag.String("sqlite", "", "Path of a sqlite database, used when --db_uri is not given")
	flag.Parse()

	var dialector gorm.Dialector
	switch {
	case *dbUri != "":
		dialector = postgres.Open(postgresDsn(*dbUri))
	case *sqlitePath != "":
		dialector = sqlite.Open(*sqlitePath)
	default:
		log.Fatalf("Missing --db_uri or --sqlite arg")
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	if err := migrations.Migrate(db); err != nil {
		log.Fatalf("%v", err)
	}

	log.Println("migration completed successfully")
}
