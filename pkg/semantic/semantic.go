// Package semantic wraps the Qdrant collections holding article and
// chunk vectors. Article points are keyed by the numeric article id;
// chunk points get a synthetic numeric id derived from the chunk id
// hash, with the real ids carried in the payload.
package semantic

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/khojlabs/khoj/pkg/apierr"
)

// Config holds the Qdrant connection and collection names.
type Config struct {
	Host              string
	Port              int
	APIKey            string
	UseTLS            bool
	ArticleCollection string
	ChunkCollection   string
	ArticleTopK       int
	ChunkTopK         int
}

// ArticleHit is one article-vector search result.
type ArticleHit struct {
	ArticleID string
	Score     float64
}

// ChunkHit is one chunk-vector search result.
type ChunkHit struct {
	ChunkID   string
	ArticleID string
	Score     float64
}

// Store is the Qdrant-backed vector store.
type Store struct {
	client *qdrant.Client
	cfg    Config
}

// New connects to Qdrant.
func New(cfg Config) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &Store{client: client, cfg: cfg}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// ChunkPointID derives the numeric point id for a chunk: the first
// eight bytes of SHA-1(chunk_id), big-endian. Stable across runs so
// re-indexing upserts in place.
func ChunkPointID(chunkID string) uint64 {
	sum := sha1.Sum([]byte(chunkID))
	return binary.BigEndian.Uint64(sum[:8])
}

// SearchArticles searches the article-vector collection. Payload is
// skipped: the point id is the article id.
func (s *Store) SearchArticles(ctx context.Context, vector []float32) ([]ArticleHit, error) {
	req := &qdrant.SearchPoints{
		CollectionName: s.cfg.ArticleCollection,
		Vector:         vector,
		Limit:          uint64(s.cfg.ArticleTopK),
		WithPayload:    qdrant.NewWithPayload(false),
	}

	res, err := s.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: article vector search: %v", apierr.ErrRetrieval, err)
	}

	hits := make([]ArticleHit, 0, len(res.Result))
	for _, p := range res.Result {
		id := pointIDString(p.Id)
		if id == "" {
			continue
		}
		hits = append(hits, ArticleHit{ArticleID: id, Score: float64(p.Score)})
	}
	return hits, nil
}

// SearchChunks searches the chunk-vector collection. The chunk and
// article ids live in the payload because the point id is a hash.
func (s *Store) SearchChunks(ctx context.Context, vector []float32) ([]ChunkHit, error) {
	req := &qdrant.SearchPoints{
		CollectionName: s.cfg.ChunkCollection,
		Vector:         vector,
		Limit:          uint64(s.cfg.ChunkTopK),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	res, err := s.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk vector search: %v", apierr.ErrRetrieval, err)
	}

	hits := make([]ChunkHit, 0, len(res.Result))
	for _, p := range res.Result {
		hit := ChunkHit{Score: float64(p.Score)}
		if p.Payload != nil {
			hit.ChunkID = payloadString(p.Payload, "chunk_id")
			hit.ArticleID = payloadString(p.Payload, "article_id")
		}
		if hit.ArticleID == "" {
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// EnsureCollections creates both collections with cosine distance if
// they do not exist.
func (s *Store) EnsureCollections(ctx context.Context, dim int) error {
	for _, name := range []string{s.cfg.ArticleCollection, s.cfg.ChunkCollection} {
		exists, err := s.client.CollectionExists(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to check collection %s: %w", name, err)
		}
		if exists {
			continue
		}
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}
	return nil
}

// UpsertArticle writes one article vector keyed by the numeric article id.
func (s *Store) UpsertArticle(ctx context.Context, articleID string, vector []float32, payload map[string]interface{}) error {
	num, err := strconv.ParseUint(articleID, 10, 64)
	if err != nil {
		return fmt.Errorf("article id %q is not numeric: %w", articleID, err)
	}
	return s.upsert(ctx, s.cfg.ArticleCollection, qdrant.NewIDNum(num), vector, payload)
}

// UpsertChunk writes one chunk vector keyed by the chunk id hash.
func (s *Store) UpsertChunk(ctx context.Context, chunkID string, vector []float32, payload map[string]interface{}) error {
	return s.upsert(ctx, s.cfg.ChunkCollection, qdrant.NewIDNum(ChunkPointID(chunkID)), vector, payload)
}

func (s *Store) upsert(ctx context.Context, collection string, id *qdrant.PointId, vector []float32, payload map[string]interface{}) error {
	qp := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		val, err := qdrant.NewValue(v)
		if err != nil {
			return fmt.Errorf("failed to convert payload value %s: %w", k, err)
		}
		qp[k] = val
	}

	point := &qdrant.PointStruct{
		Id:      id,
		Vectors: qdrant.NewVectors(vector...),
		Payload: qp,
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point into %s: %w", collection, err)
	}
	return nil
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil || id.PointIdOptions == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return strconv.FormatUint(v.Num, 10)
	}
	return ""
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
		return sv.StringValue
	}
	return ""
}
