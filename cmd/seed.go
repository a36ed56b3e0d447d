package cmd

import (
	"context"
	"fmt"
	"log"

	"RoomFM/cache"
	"RoomFM/config"
	"RoomFM/core/engine"
	"RoomFM/db"
	"RoomFM/logger"
	"RoomFM/model"
	"RoomFM/repository"

	"github.com/spf13/cobra"
)

var seedRoomID string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a room's queue from its artist catalog",
	Long:  `Fill a room's play queue with the room artist's catalog in catalog order, skipping tracks already queued or recently played.`,
	Run: func(cmd *cobra.Command, args []string) {
		if seedRoomID == "" {
			log.Fatal("--room is required")
		}

		cfg := config.Load()
		logger.InitLogger(logger.Config{Level: logger.LogLevel(cfg.LogLevel)})
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}

		if err := db.ConnectGormDB(cfg); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.CloseGormDB()

		if err := db.ConnectRedis(cfg); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer db.CloseRedis()

		if err := db.AutoMigrateModels(
			&model.Artist{},
			&model.Track{},
			&model.Embedding{},
			&model.Room{},
			&model.PlayHistoryEntry{},
		); err != nil {
			log.Fatalf("Failed to migrate models: %v", err)
		}

		scorer, err := engine.NewScorer(engine.ScorerConfig{
			Weights: engine.Weights{
				Alpha: cfg.ScorerWeights.Alpha,
				Beta:  cfg.ScorerWeights.Beta,
				Gamma: cfg.ScorerWeights.Gamma,
			},
			NoveltyDecay: cfg.NoveltyHalfLife,
			FatigueScale: cfg.FatigueScale,
			EmbeddingDim: cfg.EmbeddingDim,
		})
		if err != nil {
			log.Fatalf("Failed to build scorer: %v", err)
		}

		eng, err := engine.New(engine.Deps{
			State:      cache.NewRoomStateCache(db.RedisClient),
			History:    repository.NewGormHistoryRepository(db.GormDB),
			Catalog:    repository.NewGormTrackRepository(db.GormDB),
			Embeddings: repository.NewGormEmbeddingRepository(db.GormDB),
			Rooms:      repository.NewGormRoomRepository(db.GormDB),
			Scorer:     scorer,
			Window: engine.HistoryWindow{
				MaxEntries: cfg.HistoryMaxEntries,
				MaxAge:     cfg.HistoryMaxAge,
			},
		})
		if err != nil {
			log.Fatalf("Failed to build engine: %v", err)
		}

		added, err := eng.SeedCatalog(context.Background(), seedRoomID)
		if err != nil {
			log.Fatalf("Failed to seed room %s: %v", seedRoomID, err)
		}
		fmt.Printf("Seeded %d tracks into room %s\n", added, seedRoomID)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedRoomID, "room", "", "room id to seed")
	rootCmd.AddCommand(seedCmd)
}
