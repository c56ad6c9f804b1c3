package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// upsertBatchSize is the number of points sent per Qdrant upsert.
const upsertBatchSize = 100

// QdrantStorage mirrors a bundle into a Qdrant collection and searches it.
// Point IDs are bundle positions, so hits line up with the local store.
type QdrantStorage struct {
	client     *qdrant.Client
	host       string
	port       int
	collection string
}

// NewQdrantStorage creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStorage(host string, port int, collection string) (*QdrantStorage, error) {
	if collection == "" {
		collection = DefaultCollectionName
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	storage := &QdrantStorage{
		client:     client,
		host:       host,
		port:       port,
		collection: collection,
	}

	if err := storage.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return storage, nil
}

// newBackoff is the retry policy shared by health checks and upserts.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(newBackoff(), ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the collection with Euclidean vectors of the given
// dimension unless it exists. Idempotent.
func (s *QdrantStorage) EnsureCollection(ctx context.Context, dim int) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == s.collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// Page lookups filter on this field.
	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      "page",
		FieldType:      qdrant.FieldType_FieldTypeInteger.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create index for field page: %w", err)
	}
	return nil
}

// ClearCollection drops the collection and recreates it for dim-sized vectors.
func (s *QdrantStorage) ClearCollection(ctx context.Context, dim int) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return s.EnsureCollection(ctx, dim)
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *QdrantStorage) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	return backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	}, backoff.WithContext(newBackoff(), ctx))
}

// SyncStore replaces the collection contents with the chunks of store.
// Returns the number of points written.
func (s *QdrantStorage) SyncStore(ctx context.Context, store *Store) (int, error) {
	if err := s.ClearCollection(ctx, store.Dimension()); err != nil {
		return 0, err
	}

	for i := 0; i < store.Len(); i += upsertBatchSize {
		end := min(i+upsertBatchSize, store.Len())

		points := make([]*qdrant.PointStruct, 0, end-i)
		for pos := i; pos < end; pos++ {
			text, meta := store.Chunk(pos)
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(pos)),
				Vectors: qdrant.NewVectors(store.Vector(pos)...),
				Payload: qdrant.NewValueMap(map[string]any{
					"text":    text,
					"page":    meta.Page,
					"section": meta.Section,
				}),
			})
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return i, fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}
	return store.Len(), nil
}

// Search returns the k points nearest to query, nearest first.
// Qdrant reports Euclidean distance as the score for this collection.
func (s *QdrantStorage) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if err := checkK(k); err != nil {
		return nil, err
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		hits = append(hits, Hit{
			Position: int(result.Id.GetNum()),
			Text:     payload["text"].GetStringValue(),
			Page:     int(payload["page"].GetIntegerValue()),
			Section:  payload["section"].GetStringValue(),
			Distance: float64(result.Score),
		})
	}
	return hits, nil
}

// GetCollectionInfo retrieves collection statistics including total points count.
func (s *QdrantStorage) GetCollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollectionNotFound, err)
	}
	return &CollectionInfo{PointsCount: count}, nil
}
