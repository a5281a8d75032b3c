package semantic

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func TestChunkPointIDDeterministic(t *testing.T) {
	a := ChunkPointID("a42::c0003")
	b := ChunkPointID("a42::c0003")
	if a != b {
		t.Errorf("same chunk id produced %d and %d", a, b)
	}
	if a == 0 {
		t.Error("point id should not be zero for a real chunk id")
	}
}

func TestChunkPointIDDistinct(t *testing.T) {
	seen := map[uint64]string{}
	for _, id := range []string{"a1::c0000", "a1::c0001", "a2::c0000", "a42::c0003"} {
		p := ChunkPointID(id)
		if prev, ok := seen[p]; ok {
			t.Errorf("chunk ids %q and %q collide on point id %d", prev, id, p)
		}
		seen[p] = id
	}
}

func TestPointIDString(t *testing.T) {
	if got := pointIDString(qdrant.NewIDNum(42)); got != "42" {
		t.Errorf("numeric point id = %q, want 42", got)
	}
	if got := pointIDString(qdrant.NewID("550e8400-e29b-41d4-a716-446655440000")); got != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("uuid point id = %q", got)
	}
	if got := pointIDString(nil); got != "" {
		t.Errorf("nil point id = %q, want empty", got)
	}
}

func TestPayloadString(t *testing.T) {
	chunkID, err := qdrant.NewValue("a42::c0003")
	if err != nil {
		t.Fatalf("NewValue(string) failed: %v", err)
	}
	count, err := qdrant.NewValue(3)
	if err != nil {
		t.Fatalf("NewValue(int) failed: %v", err)
	}
	payload := map[string]*qdrant.Value{
		"chunk_id": chunkID,
		"count":    count,
	}
	if got := payloadString(payload, "chunk_id"); got != "a42::c0003" {
		t.Errorf("payloadString(chunk_id) = %q", got)
	}
	if got := payloadString(payload, "count"); got != "" {
		t.Errorf("non-string payload value should yield empty, got %q", got)
	}
	if got := payloadString(payload, "missing"); got != "" {
		t.Errorf("missing key should yield empty, got %q", got)
	}
}
