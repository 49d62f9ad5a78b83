// cmd/server/main.go
package main

import (
	"context"
	"os"

	"github.com/datalink-labs/datalink-backend/api"
	"github.com/datalink-labs/datalink-backend/config"
	"github.com/datalink-labs/datalink-backend/internal/compute"
	"github.com/datalink-labs/datalink-backend/internal/crypto"
	"github.com/datalink-labs/datalink-backend/internal/logger"
	"github.com/datalink-labs/datalink-backend/internal/pipeline"
	"github.com/datalink-labs/datalink-backend/internal/probe"
	"github.com/datalink-labs/datalink-backend/internal/registry"
	"github.com/datalink-labs/datalink-backend/internal/session"
	"github.com/datalink-labs/datalink-backend/internal/storage"
)

var (
	customLog = logger.NewLogger()
)

func main() {
	customLog.Println("Starting Datalink Backend server...")

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		customLog.Fatalf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	// 2. Initialize Metadata Database Connection
	metaDB, err := storage.ConnectMetadataDB(cfg)
	if err != nil {
		customLog.Fatalf("Failed to initialize metadata database: %v", err)
		os.Exit(1)
	}
	defer func() {
		customLog.Println("Closing metadata database connection...")
		if err := metaDB.Close(); err != nil {
			customLog.Printf("Error closing metadata database: %v", err)
		}
	}()

	// 3. Build services
	enc, err := crypto.NewEncryptionService(cfg.EncryptionKey)
	if err != nil {
		customLog.Fatalf("Failed to initialize credential encryption: %v", err)
		os.Exit(1)
	}

	computeClient := compute.NewClient(cfg.ComputeServiceURL, cfg.ComputeRequestTimeout)
	tokens := session.NewStore(metaDB, computeClient, cfg.SessionDuration, cfg.SweepInterval)
	prober := probe.NewSQLProber(cfg.ProbeTimeout)
	reg := registry.NewService(metaDB, enc, tokens, prober, cfg.EnableMongoDB)
	pipe := pipeline.NewPipeline(computeClient, cfg.DefaultRowCap)

	// 4. Start the token expiry sweep
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	tokens.StartSweeper(sweepCtx)

	// 5. Setup Router (passing dependencies)
	router := api.SetupRouter(metaDB, cfg, reg, tokens, pipe)

	// 6. Start Server
	customLog.Printf("Server listening on port %s", cfg.ServerPort)
	if err := router.Run(cfg.ServerPort); err != nil {
		customLog.Fatalf("Failed to start server: %v", err)
	}
}
