// Package main provides a database migration runner.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/viper"

	"github.com/cory-johannsen/skirmish/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	source := flag.String("migrations", "migrations", "path to the migrations directory")
	direction := flag.String("direction", "up", "up, down, or version")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	flag.Parse()
	if *steps < 0 {
		log.Fatalf("steps must be >= 0, got %d", *steps)
	}

	v := viper.New()
	v.SetConfigFile(*configPath)
	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("reading config: %v", err)
	}
	sub := v.Sub("database")
	if sub == nil {
		log.Fatalf("config %s carries no database section", *configPath)
	}
	var dbCfg config.DatabaseConfig
	if err := sub.Unmarshal(&dbCfg); err != nil {
		log.Fatalf("parsing database config: %v", err)
	}

	m, err := migrate.New("file://"+*source, dbCfg.DSN())
	if err != nil {
		log.Fatalf("creating migrator: %v", err)
	}
	defer m.Close()

	start := time.Now()
	switch *direction {
	case "up":
		err = apply(m.Up, m.Steps, *steps)
	case "down":
		err = apply(m.Down, m.Steps, -*steps)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && verr != migrate.ErrNilVersion {
			log.Fatalf("reading version: %v", verr)
		}
		fmt.Fprintf(os.Stdout, "version=%d dirty=%v\n", version, dirty)
		return
	default:
		log.Fatalf("invalid direction %q: must be up, down, or version", *direction)
	}
	if err != nil && err != migrate.ErrNoChange {
		log.Fatalf("migration failed: %v", err)
	}

	version, dirty, _ := m.Version()
	if err == migrate.ErrNoChange {
		fmt.Fprintf(os.Stdout, "no changes (version=%d dirty=%v) [%s]\n", version, dirty, time.Since(start))
		return
	}
	fmt.Fprintf(os.Stdout, "migrated %s to version=%d dirty=%v [%s]\n", *direction, version, dirty, time.Since(start))
}

// apply runs every pending migration, or exactly n of them when n is
// non-zero.
func apply(all func() error, stepped func(int) error, n int) error {
	if n != 0 {
		return stepped(n)
	}
	return all()
}
