package stores

import (
	"context"
	"fmt"
	"hedgedoc-server/config"
	"hedgedoc-server/core"
	"hedgedoc-server/stores/aws"
	"hedgedoc-server/stores/filesystem"
	"hedgedoc-server/stores/memory"
	"hedgedoc-server/stores/postgres"
	"hedgedoc-server/stores/sqlite"

	"github.com/sirupsen/logrus"
)

func GetStore(ctx context.Context, cfg config.StorageConfig) (core.DocumentStore, error) {
	var (
		store core.DocumentStore
		err   error
	)

	storageField := logrus.Fields{
		"storageType": cfg.Type,
	}

	switch cfg.Type {
	case "filesystem":
		storageField["basePath"] = cfg.LocalPath
		store, err = filesystem.NewDocumentStore(cfg.LocalPath)
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
		store, err = sqlite.NewDocumentStore(cfg.DataSourceName)
	case "postgres":
		store, err = postgres.NewDocumentStore(ctx, cfg.DatabaseURL)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME must be set for s3 storage")
		}
		storageField["bucketName"] = cfg.S3Bucket
		store, err = aws.NewDocumentStore(ctx, cfg.S3Bucket)
	case "", "memory":
		store = memory.NewDocumentStore()
		storageField["storageType"] = "in-memory"
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}
