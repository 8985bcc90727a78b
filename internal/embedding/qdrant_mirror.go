package embedding

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// insightIDField stores the original insight ID in the point payload, since
// Qdrant only accepts UUIDs or positive integers as point IDs.
const insightIDField = "_insight_id"

// QdrantMirror best-effort mirrors insight embeddings into a Qdrant
// collection, keyed by insightID, so a future cross-session semantic search
// feature (out of scope for this core, see gateway.Context's
// OtherSessionsTopicSummaries stub) has somewhere to read from. Every method
// is nil-receiver-safe: a nil *QdrantMirror behaves as "disabled" rather than
// panicking, so callers can wire it unconditionally.
type QdrantMirror struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantMirror connects to dsn (e.g. "http://localhost:6334") and ensures
// collection exists with the given vector dimension. Returns (nil, nil) when
// dsn is empty, so construction can be unconditional in main.
func NewQdrantMirror(ctx context.Context, dsn, collection string, dimension int) (*QdrantMirror, error) {
	if dsn == "" {
		return nil, nil
	}
	if collection == "" {
		collection = "memory_insights"
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	m := &QdrantMirror{client: client, collection: collection}
	if err := m.ensureCollection(ctx, dimension); err != nil {
		client.Close()
		return nil, err
	}
	return m, nil
}

func (m *QdrantMirror) ensureCollection(ctx context.Context, dimension int) error {
	exists, err := m.client.CollectionExists(ctx, m.collection)
	if err != nil {
		return fmt.Errorf("check qdrant collection: %w", err)
	}
	if exists {
		return nil
	}
	if dimension <= 0 {
		return fmt.Errorf("qdrant mirror requires dimension > 0 for a new collection")
	}
	return m.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: m.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func pointIDFor(insightID string) string {
	if _, err := uuid.Parse(insightID); err == nil {
		return insightID
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(insightID)).String()
}

// Upsert writes or replaces the vector for insightID, tagged with
// topicID/threadID for filtered search.
func (m *QdrantMirror) Upsert(ctx context.Context, insightID, topicID, threadID string, vector []float32) error {
	if m == nil || m.client == nil || len(vector) == 0 {
		return nil
	}
	payload := qdrant.NewValueMap(map[string]any{
		insightIDField: insightID,
		"topic_id":     topicID,
		"thread_id":    threadID,
	})
	_, err := m.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: m.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pointIDFor(insightID)),
			Vectors: qdrant.NewVectorsDense(append([]float32(nil), vector...)),
			Payload: payload,
		}},
	})
	return err
}

// Close releases the underlying gRPC connection. Safe to call on a nil
// receiver.
func (m *QdrantMirror) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}
