// Package main runs the StoryNest sync core as a standalone process.
// Mobile shells embed the same packages directly; this binary exists for
// desktop use and for exercising the full stack end to end.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/storynest/storynest/internal/config"
	"github.com/storynest/storynest/internal/connectivity"
	"github.com/storynest/storynest/internal/db"
	"github.com/storynest/storynest/internal/logging"
	"github.com/storynest/storynest/internal/remote"
	"github.com/storynest/storynest/internal/repository"
	syncpkg "github.com/storynest/storynest/internal/sync"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := logging.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer logging.Sync()
	logging.Info("storynest starting", zap.String("version", Version))

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		logging.Error("create data dir", zap.Error(err))
		os.Exit(1)
	}

	database, err := db.Open(cfg.Storage.DataDir)
	if err != nil {
		logging.Error("open database", zap.Error(err))
		os.Exit(1)
	}
	defer database.Close()

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		logging.Error("init migrations", zap.Error(err))
		os.Exit(1)
	}
	if err := migrator.Up(); err != nil {
		logging.Error("apply migrations", zap.Error(err))
		os.Exit(1)
	}

	store := db.NewStore(database.DB)

	// Replay attempts never survive a restart: anything still marked
	// in_progress was orphaned by a crash and goes back to pending. A
	// fresh launch also gives exhausted operations a new retry budget.
	if n, err := store.RecoverInFlightSyncOperations(); err != nil {
		logging.Error("recover sync operations", zap.Error(err))
		os.Exit(1)
	} else if n > 0 {
		logging.Info("recovered orphaned sync operations", zap.Int("count", n))
	}
	if n, err := store.RequeueFailedSyncOperations(); err != nil {
		logging.Error("requeue sync operations", zap.Error(err))
		os.Exit(1)
	} else if n > 0 {
		logging.Info("requeued failed sync operations", zap.Int("count", n))
	}

	oracle := connectivity.NewMonitor(cfg.Connectivity.ProbeInterval)
	defer oracle.Close()

	client := remote.NewClient(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout)
	client.SetAuthExpiredHandler(func() {
		logging.Warn("auth token expired, remote sync paused until re-login")
	})

	manager := syncpkg.NewManager(oracle)

	audioKey := []byte(cfg.Storage.EncryptionKey)
	stories := repository.NewStoryRepository(store, remote.NewStoryAPI(client), oracle, manager, cfg.Storage.AudioCacheDir, audioKey)
	profiles := repository.NewVoiceProfileRepository(store, remote.NewVoiceProfileAPI(client), oracle, manager)
	sessions := repository.NewQASessionRepository(store, remote.NewQAAPI(client), oracle, manager)
	questions := repository.NewPendingQuestionRepository(store, remote.NewPendingQuestionAPI(client), oracle, manager)
	parents := repository.NewParentRepository(store, remote.NewParentAPI(client), oracle, manager)

	for dt, h := range map[syncpkg.DataType]syncpkg.Handler{
		syncpkg.DataTypeStories:          syncpkg.HandlerFunc(stories.Sync),
		syncpkg.DataTypeVoiceProfiles:    syncpkg.HandlerFunc(profiles.Sync),
		syncpkg.DataTypeQASessions:       syncpkg.HandlerFunc(sessions.Sync),
		syncpkg.DataTypePendingQuestions: syncpkg.HandlerFunc(questions.Sync),
		syncpkg.DataTypeParents:          syncpkg.HandlerFunc(parents.Sync),
	} {
		if err := manager.Register(dt, h); err != nil {
			logging.Error("register sync handler", zap.String("data_type", string(dt)), zap.Error(err))
			os.Exit(1)
		}
	}
	defer manager.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.WatchConnectivity(ctx)

	if cfg.Sync.AutoSync {
		if err := manager.StartAutoSync(cfg.Sync.Interval); err != nil {
			logging.Error("start auto sync", zap.Error(err))
			os.Exit(1)
		}
	}

	if oracle.Reachable() {
		res := manager.Sync(ctx)
		logging.Info("startup sync pass",
			zap.Bool("success", res.Success),
			zap.Int("items_synced", res.ItemsSynced))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logging.Info("shutting down", zap.String("signal", s.String()))
}
