package main

import (
	"context"
	"fmt"
	"time"

	"image-registry/codec"
	"image-registry/config"
	"image-registry/media"
	"image-registry/orm"
	"image-registry/redislock"
	"image-registry/server"
	"image-registry/store"
	"image-registry/store/filesystemStore"
	"image-registry/store/memoryStore"
	"image-registry/store/s3"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := orm.Open()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	blobStore := initializeBlobStore()

	locker, err := redislock.NewRedisLocker(
		config.Cfg.Redis.Addr,
		config.Cfg.Redis.Password,
		config.Cfg.Redis.DB,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	mediaCfg := config.Cfg.Media
	svc := media.NewService(db, blobStore, codec.NewImagingCodec(), locker, media.Options{
		DefaultFolder:      mediaCfg.DefaultFolder,
		MaxDimension:       mediaCfg.MaxDimension,
		MinDimension:       mediaCfg.MinDimension,
		NameAttempts:       mediaCfg.NameAttempts,
		LockWait:           time.Duration(mediaCfg.LockWaitSeconds) * time.Second,
		MetaDeleteAttempts: mediaCfg.MetaDeleteAttempts,
		Oracles:            usageOracles(),
	})

	if mediaCfg.SweepAfterHours > 0 {
		go runRetentionSweep(svc, time.Duration(mediaCfg.SweepAfterHours)*time.Hour)
	}

	srv := server.New(svc, db)
	addr := fmt.Sprintf(":%d", config.Cfg.Port)
	log.Info().Str("addr", addr).Msg("image registry listening")
	if err := srv.Router().Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func initializeBlobStore() store.Store {
	var blobStore store.Store
	switch config.Cfg.Persistence.Type {
	case "filesystem":
		blobStore = initFilesystemStore()
	case "s3":
		blobStore = initS3Store()
	case "memory":
		log.Warn().Msg("memory persistence holds no data across restarts")
		blobStore = memoryStore.New()
	default:
		log.Warn().Msgf("unknown persistence type '%s', defaulting to filesystem", config.Cfg.Persistence.Type)
		blobStore = initFilesystemStore()
	}

	return blobStore
}

func initFilesystemStore() store.Store {
	storageDir := config.Cfg.Persistence.StorageDir
	if storageDir == "" {
		storageDir = filesystemStore.GetStorageDir()
	}
	fsStore, err := filesystemStore.New(storageDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize filesystem store")
	}
	log.Info().
		Str("storage_dir", storageDir).
		Msg("filesystem store initialized")

	return fsStore
}

func initS3Store() store.Store {
	s3Store, err := s3.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize s3 store")
	}
	log.Info().Msg("s3 store initialized")

	return s3Store
}

func usageOracles() []media.UsageOracle {
	if config.Cfg.Media.FeaturedDocument == "" {
		return nil
	}

	return []media.UsageOracle{
		&media.FeaturedDocument{Path: config.Cfg.Media.FeaturedDocument},
	}
}

// runRetentionSweep periodically removes images that have stayed unlabeled
// longer than maxAge.
func runRetentionSweep(svc *media.Service, maxAge time.Duration) {
	interval := maxAge / 4
	if interval > time.Hour {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		swept, err := svc.SweepAbandoned(context.Background(), maxAge)
		if err != nil {
			log.Error().Err(err).Msg("retention sweep failed")
			continue
		}
		if swept > 0 {
			log.Info().Int("swept", swept).Msg("retention sweep removed abandoned images")
		}
	}
}
