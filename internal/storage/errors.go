package storage

import "errors"

var (
	ErrIngestion          = errors.New("ingestion failed")
	ErrStoreCorrupt       = errors.New("chunk store corrupt")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrQdrantUnreachable  = errors.New("qdrant server unreachable")
	ErrCollectionNotFound = errors.New("collection not found")
)
