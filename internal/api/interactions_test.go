package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/kalambet/folio/internal/storage"
)

var adminHeader = map[string]string{"Authorization": "Bearer s3cret"}

func seedInteractions(t *testing.T, store *storage.Store) {
	t.Helper()
	now := time.Now().UTC()
	for i, status := range []int{200, 502, 200} {
		err := store.SaveInteraction(storage.Interaction{
			ID:        []string{"a", "b", "c"}[i],
			CreatedAt: now.Add(time.Duration(i-3) * time.Minute),
			UserQuery: "question",
			Model:     "test/model",
			Status:    status,
			LatencyMs: int64(100 * (i + 1)),
		})
		if err != nil {
			t.Fatalf("SaveInteraction: %v", err)
		}
	}
}

func interactionDeps(t *testing.T) Deps {
	deps, _, _ := testDeps()
	deps.AdminToken = "s3cret"
	deps.Store = openTestStore(t)
	seedInteractions(t, deps.Store)
	return deps
}

func TestListInteractions(t *testing.T) {
	h := NewHandler(interactionDeps(t))

	rec := doRequest(t, h, http.MethodGet, "/api/interactions?limit=2", "", adminHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []storage.Interaction
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("got %+v, want newest two", got)
	}
}

func TestGetInteraction(t *testing.T) {
	h := NewHandler(interactionDeps(t))

	rec := doRequest(t, h, http.MethodGet, "/api/interactions/b", "", adminHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got storage.Interaction
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ID != "b" || got.Status != 502 {
		t.Errorf("got %+v", got)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/interactions/missing", "", adminHeader)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rec.Code)
	}
}

func TestInteractionStats(t *testing.T) {
	h := NewHandler(interactionDeps(t))

	rec := doRequest(t, h, http.MethodGet, "/api/interactions/stats?since=1h", "", adminHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got storage.InteractionStats
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Total != 3 || got.Failed != 1 {
		t.Errorf("stats = %+v, want 3 total 1 failed", got)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/interactions/stats?since=yesterday", "", adminHeader)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d, want 400", rec.Code)
	}
}

func TestInteractions_RequireAuth(t *testing.T) {
	h := NewHandler(interactionDeps(t))
	rec := doRequest(t, h, http.MethodGet, "/api/interactions", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
