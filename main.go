package main

import (
	"context"
	"log"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"discord-invite-tracker/internal/bot"
	"discord-invite-tracker/internal/config"
	"discord-invite-tracker/internal/database"
	"discord-invite-tracker/internal/redis"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	numCPU := runtime.NumCPU()
	runtime.GOMAXPROCS(numCPU)

	// Less frequent GC; the working set is small and mostly long-lived maps.
	gcPercent := 200
	debug.SetGCPercent(gcPercent)

	memoryLimit := int64(1 * 1024 * 1024 * 1024)
	debug.SetMemoryLimit(memoryLimit)

	log.Println("Runtime configured:")
	log.Printf("   • GOMAXPROCS: %d cores", numCPU)
	log.Printf("   • GC Percent: %d", gcPercent)
	log.Printf("   • Memory Limit: %d MB", memoryLimit/(1024*1024))

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	path := config.DefaultPath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	var (
		cfg *config.Config
		err error
	)
	if _, statErr := os.Stat(path); statErr == nil {
		cfg, err = config.Load(path)
	} else {
		log.Printf("%s not found, reading configuration from the environment", path)
		cfg, err = config.FromEnv()
	}
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Error initializing logger: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rdb, err := redis.New(ctx, cfg.Redis, logger)
	if err != nil {
		log.Fatalf("Error initializing Redis: %v", err)
	}

	db, err := database.NewDatabase(ctx, cfg.Postgres, logger)
	if err != nil {
		log.Fatalf("Error initializing Database: %v", err)
	}

	b, err := bot.New(cfg, db, rdb, logger)
	if err != nil {
		log.Fatalf("Error initializing bot: %v", err)
	}

	if err := b.Start(); err != nil {
		log.Fatalf("Error starting bot: %v", err)
	}
}
