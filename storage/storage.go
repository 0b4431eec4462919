package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the backend
var ErrNotFound = errors.New("object not found")

// Storage interface for blob storage operations (content snapshots)
type Storage interface {
	// Put stores data under key, replacing any previous object
	Put(ctx context.Context, key string, data io.Reader) error

	// Get retrieves an object by key
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object by key
	Delete(ctx context.Context, key string) error

	// List returns the keys under prefix in lexical order
	List(ctx context.Context, prefix string) ([]string, error)
}

// StorageType represents the storage backend type
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// StorageConfig holds configuration for storage
type StorageConfig struct {
	Type         StorageType
	LocalPath    string // For local storage
	S3Bucket     string // For S3 storage
	S3Region     string // For S3 storage
	AWSAccessKey string
	AWSSecretKey string
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(cfg StorageConfig) (Storage, error) {
	switch cfg.Type {
	case StorageTypeLocal, "":
		localPath := cfg.LocalPath
		if localPath == "" {
			localPath = "./storage/content" // Default local storage path
		}
		return NewLocalStorage(localPath)
	case StorageTypeS3:
		if cfg.S3Bucket == "" {
			return nil, errors.New("S3 bucket is required for S3 storage")
		}
		if cfg.S3Region == "" {
			cfg.S3Region = "us-east-1"
		}
		return NewS3Storage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// SnapshotKey builds the key a content snapshot is stored under
func SnapshotKey(prefix, filename string) string {
	ext := path.Ext(filename)
	baseName := strings.TrimSuffix(path.Base(filename), ext)
	// Sanitize filename
	baseName = strings.ReplaceAll(baseName, " ", "_")
	baseName = strings.ReplaceAll(baseName, "/", "_")
	baseName = strings.ReplaceAll(baseName, "\\", "_")
	baseName = strings.ReplaceAll(baseName, "..", "_")

	return path.Join(strings.Trim(prefix, "/"), baseName+strings.ToLower(ext))
}
