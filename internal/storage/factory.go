package storage

import "github.com/jamesjordanmarketing/train-data-sub008/internal/config"

// NewStorage creates an ObjectStorage instance from service configuration.
func NewStorage(cfg *config.StorageConfig) (ObjectStorage, error) {
	return NewS3Storage(&S3Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
	})
}
