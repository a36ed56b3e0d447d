package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RoomFM/cache"
	"RoomFM/config"
	"RoomFM/core/engine"
	"RoomFM/core/room"
	"RoomFM/db"
	"RoomFM/logger"
	"RoomFM/model"
	"RoomFM/repository"

	"github.com/gorilla/mux"
)

// toScorerWeights bridges the config weight struct into the engine's.
func toScorerWeights(w config.Weights) engine.Weights {
	return engine.Weights{Alpha: w.Alpha, Beta: w.Beta, Gamma: w.Gamma}
}

// Start wires the full service and blocks until an interrupt.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogOutput,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	if err := db.AutoMigrateModels(
		&model.Artist{},
		&model.Track{},
		&model.Embedding{},
		&model.Room{},
		&model.PlayHistoryEntry{},
	); err != nil {
		logger.Fatal("failed to migrate models", logger.ErrorField(err))
	}

	roomRepo := repository.NewGormRoomRepository(db.GormDB)
	trackRepo := repository.NewGormTrackRepository(db.GormDB)
	embeddingRepo := repository.NewGormEmbeddingRepository(db.GormDB)
	historyRepo := repository.NewGormHistoryRepository(db.GormDB)
	stateCache := cache.NewRoomStateCache(db.RedisClient)

	scorer, err := engine.NewScorer(engine.ScorerConfig{
		Weights:      toScorerWeights(cfg.ScorerWeights),
		NoveltyDecay: cfg.NoveltyHalfLife,
		FatigueScale: cfg.FatigueScale,
		EmbeddingDim: cfg.EmbeddingDim,
	})
	if err != nil {
		logger.Fatal("failed to build scorer", logger.ErrorField(err))
	}

	hub := room.NewHub(stateCache)
	go hub.Run()
	defer hub.Stop()

	eng, err := engine.New(engine.Deps{
		State:      stateCache,
		History:    historyRepo,
		Catalog:    trackRepo,
		Embeddings: embeddingRepo,
		Rooms:      roomRepo,
		Notifier:   hub,
		Scorer:     scorer,
		Window: engine.HistoryWindow{
			MaxEntries: cfg.HistoryMaxEntries,
			MaxAge:     cfg.HistoryMaxAge,
		},
	})
	if err != nil {
		logger.Fatal("failed to build engine", logger.ErrorField(err))
	}

	if cfg.WeightsFile != "" {
		stop, err := config.WatchWeights(cfg.WeightsFile, func(w config.Weights) error {
			return scorer.SetWeights(toScorerWeights(w))
		})
		if err != nil {
			logger.Fatal("failed to watch weights file",
				logger.String("path", cfg.WeightsFile),
				logger.ErrorField(err))
		}
		defer stop()
	}

	apiHandler := NewAPIHandler(eng, roomRepo, trackRepo, stateCache, hub, cfg)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// Auth
	router.HandleFunc("/api/auth/token", apiHandler.TokenHandler).Methods(http.MethodPost)

	// Catalog ingestion
	router.HandleFunc("/api/artists", apiHandler.UpsertArtistHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/artists/{id}/tracks", apiHandler.GetTracksByArtistHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks", apiHandler.UpsertTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}/embedding", apiHandler.UpsertEmbeddingHandler).Methods(http.MethodPut)

	// Rooms
	router.HandleFunc("/api/rooms", apiHandler.CreateRoomHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms", apiHandler.ListRoomsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/{id}", apiHandler.GetRoomHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/{id}/snapshot", apiHandler.SnapshotHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/{id}/join", apiHandler.AuthMiddleware(apiHandler.JoinRoomHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{id}/leave", apiHandler.AuthMiddleware(apiHandler.LeaveRoomHandler)).Methods(http.MethodPost)

	// Playback
	router.HandleFunc("/api/rooms/{id}/playback", apiHandler.GetPlaybackHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/{id}/playback/track", apiHandler.AuthMiddleware(apiHandler.SetTrackHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/rooms/{id}/playback/pause", apiHandler.AuthMiddleware(apiHandler.PauseHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{id}/playback/resume", apiHandler.AuthMiddleware(apiHandler.ResumeHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{id}/playback/advance", apiHandler.AdvanceHandler).Methods(http.MethodPost)

	// Queue
	router.HandleFunc("/api/rooms/{id}/queue", apiHandler.GetQueueHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/{id}/queue", apiHandler.AuthMiddleware(apiHandler.EnqueueHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{id}/queue/pop", apiHandler.AuthMiddleware(apiHandler.PopQueueHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{id}/queue/seed", apiHandler.AuthMiddleware(apiHandler.SeedQueueHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{id}/queue/{item_id}", apiHandler.AuthMiddleware(apiHandler.RemoveQueueItemHandler)).Methods(http.MethodDelete)

	// Recommendations
	router.HandleFunc("/api/rooms/{id}/recommendations", apiHandler.RankHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/{id}/recommendations/accept", apiHandler.AuthMiddleware(apiHandler.AcceptHandler)).Methods(http.MethodPost)

	// Scorer weights
	router.HandleFunc("/api/scorer/weights", apiHandler.GetWeightsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/scorer/weights", apiHandler.SetWeightsHandler).Methods(http.MethodPut)

	// WebSocket subscription
	router.HandleFunc("/ws/rooms/{id}", apiHandler.WSHandler).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", logger.String("addr", cfg.ServerAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("server stopped")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
