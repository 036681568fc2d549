package main

import (
	"flag"
	"log"
	"time"

	"github.com/damoang/angple-chat/internal/config"
	"github.com/damoang/angple-chat/internal/migration"
	"github.com/damoang/angple-chat/internal/repository"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "configs/config.local.yaml", "config file path")
	verify := flag.Bool("verify", false, "print row counts for every chat table")
	purgeTyping := flag.Bool("purge-typing", false, "delete expired typing indicator rows")
	verbose := flag.Bool("verbose", false, "verbose SQL logging")
	flag.Parse()

	if loaded := config.LoadDotEnv(); len(loaded) == 0 {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logLevel := gormlogger.Warn
	if *verbose {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(cfg.Database.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get underlying DB: %v", err)
	}
	defer sqlDB.Close()

	start := time.Now()
	if err := migration.Run(db); err != nil {
		log.Fatalf("[migrate] FAILED: %v", err)
	}
	log.Printf("[migrate] Schema ready in %v", time.Since(start))

	if *purgeTyping {
		n, err := repository.NewTypingRepository(db).DeleteExpired(time.Now().UTC())
		if err != nil {
			log.Fatalf("[purge-typing] FAILED: %v", err)
		}
		log.Printf("[purge-typing] Removed %d expired rows", n)
	}

	if *verify {
		counts, err := migration.Counts(db)
		if err != nil {
			log.Fatalf("[verify] FAILED: %v", err)
		}
		for _, c := range counts {
			log.Printf("[verify] %-28s %d", c.Table, c.Rows)
		}
	}
}
