package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/casefile-labs/lexrag/internal/chunker"
	"github.com/casefile-labs/lexrag/internal/config"
	"github.com/casefile-labs/lexrag/internal/crypto"
	"github.com/casefile-labs/lexrag/internal/embeddings"
	"github.com/casefile-labs/lexrag/internal/ingest"
	"github.com/casefile-labs/lexrag/internal/retrieval"
	"github.com/casefile-labs/lexrag/internal/store"
	"github.com/casefile-labs/lexrag/internal/summary"
	"github.com/casefile-labs/lexrag/internal/vectorindex"
)

type stubEmbedder struct{}

func (stubEmbedder) EmbedDocuments(_ context.Context, texts []string) (*embeddings.Result, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = stubVector(text)
	}
	return &embeddings.Result{Vectors: vectors, TokensUsed: len(texts) * 5}, nil
}

func (stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return stubVector(text), nil
}

func (stubEmbedder) Dimension() int {
	return 3
}

func (stubEmbedder) Close() error {
	return nil
}

func stubVector(text string) []float32 {
	// Texts sharing the word "indemnification" embed close together so
	// retrieval tests have a predictable nearest neighbor.
	if strings.Contains(strings.ToLower(text), "indemnification") {
		return []float32{1, 0, 0.1}
	}
	sum := sha256.Sum256([]byte(text))
	return []float32{0.1, float32(sum[0]) / 255, float32(sum[1])/255 + 0.5}
}

func setupTestServer(t *testing.T, enc *crypto.Service) *Server {
	t.Helper()

	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	idx, err := vectorindex.New(config.VectorConfig{Provider: "sqlite"}, st, nil)
	require.NoError(t, err)

	cfg := config.Default()
	embedder := stubEmbedder{}

	ing := ingest.NewService(ingest.Deps{
		Store:    st,
		Index:    idx,
		Embedder: embedder,
		Chunker:  chunker.New(chunker.DefaultConfig(), nil, nil),
		Summary:  summary.NewBuilder(summary.DefaultConfig(), nil, embedder, nil),
		Crypto:   enc,
	})
	ret := retrieval.NewService(cfg.Retrieval, st, idx, embedder, enc, nil)

	server, err := NewServer(cfg.Server, ing, ret, enc, zap.NewNop())
	require.NoError(t, err)

	return server
}

func postJSON(t *testing.T, server *Server, path, tenantID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tenantID != "" {
		req.Header.Set(HeaderTenantID, tenantID)
	}
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func indexText(paragraphs int) string {
	var b strings.Builder
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&b, "Clause %d: the contractor shall provide indemnification for losses arising from the services and shall maintain insurance coverage throughout the term of the engagement in accordance with the schedule.\n\n", i)
	}
	return b.String()
}

func TestNewServer(t *testing.T) {
	t.Run("creates server", func(t *testing.T) {
		server := setupTestServer(t, nil)
		assert.NotNil(t, server.echo)
	})

	t.Run("returns error when services are nil", func(t *testing.T) {
		_, err := NewServer(config.Default().Server, nil, nil, nil, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestTenantMiddleware(t *testing.T) {
	t.Run("rejects missing tenant header", func(t *testing.T) {
		server := setupTestServer(t, nil)

		rec := postJSON(t, server, "/api/v1/retrieve", "", RetrieveRequest{Query: "indemnification"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("health endpoint needs no tenant", func(t *testing.T) {
		server := setupTestServer(t, nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestHandleIndexDocument(t *testing.T) {
	t.Run("indexes a document", func(t *testing.T) {
		server := setupTestServer(t, nil)

		rec := postJSON(t, server, "/api/v1/documents/doc-1/index", "firm-a", IndexRequest{
			Name:      "Master Services Agreement",
			Type:      "contract",
			Text:      indexText(10),
			CreatedAt: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			MatterID:  "matter-1",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var result ingest.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Greater(t, result.ChunkCount, 0)
		assert.Equal(t, result.ChunkCount, result.EmbeddedChunks)
	})

	t.Run("rejects empty text", func(t *testing.T) {
		server := setupTestServer(t, nil)

		rec := postJSON(t, server, "/api/v1/documents/doc-1/index", "firm-a", IndexRequest{Name: "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		server := setupTestServer(t, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/doc-1/index", bytes.NewReader([]byte("not json")))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(HeaderTenantID, "firm-a")
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("accepts inline matter context", func(t *testing.T) {
		server := setupTestServer(t, nil)

		rec := postJSON(t, server, "/api/v1/documents/doc-2/index", "firm-a", IndexRequest{
			Name: "Engagement Letter",
			Text: indexText(8),
			Matter: &MatterRequest{
				ID:           "matter-9",
				Name:         "Acme v. Initech",
				Type:         "litigation",
				Jurisdiction: "California",
			},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}

func TestHandleRetrieve(t *testing.T) {
	server := setupTestServer(t, nil)

	rec := postJSON(t, server, "/api/v1/documents/doc-1/index", "firm-a", IndexRequest{
		Name:      "Master Services Agreement",
		Type:      "contract",
		Text:      indexText(10),
		CreatedAt: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	t.Run("returns ranked results", func(t *testing.T) {
		rec := postJSON(t, server, "/api/v1/retrieve", "firm-a", RetrieveRequest{
			Query: "indemnification obligations",
			Limit: 5,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp retrieval.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.Results)
		assert.Equal(t, "doc-1", resp.Results[0].DocumentID)
		assert.LessOrEqual(t, len(resp.Results), 5)
	})

	t.Run("tenant isolation", func(t *testing.T) {
		rec := postJSON(t, server, "/api/v1/retrieve", "firm-b", RetrieveRequest{
			Query: "indemnification obligations",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp retrieval.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Results)
	})

	t.Run("rejects empty query", func(t *testing.T) {
		rec := postJSON(t, server, "/api/v1/retrieve", "firm-a", RetrieveRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleDeleteDocumentIndex(t *testing.T) {
	server := setupTestServer(t, nil)

	rec := postJSON(t, server, "/api/v1/documents/doc-1/index", "firm-a", IndexRequest{
		Name: "Master Services Agreement",
		Text: indexText(10),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/doc-1/index", nil)
	req.Header.Set(HeaderTenantID, "firm-a")
	del := httptest.NewRecorder()
	server.echo.ServeHTTP(del, req)
	assert.Equal(t, http.StatusNoContent, del.Code)

	// Deleted documents stop appearing in retrieval.
	get := postJSON(t, server, "/api/v1/retrieve", "firm-a", RetrieveRequest{Query: "indemnification"})
	require.Equal(t, http.StatusOK, get.Code)

	var resp retrieval.Response
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &resp))
	assert.Empty(t, resp.Results)
}

func TestHandleInvalidateKeys(t *testing.T) {
	t.Run("conflict when encryption disabled", func(t *testing.T) {
		server := setupTestServer(t, nil)

		rec := postJSON(t, server, "/api/v1/keys/invalidate", "firm-a", struct{}{})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalidates tenant keys", func(t *testing.T) {
		enc, err := crypto.NewService(config.EncryptionConfig{
			Enabled:         true,
			MasterSecret:    "test-master-secret-for-server",
			KeyTTL:          time.Minute,
			VectorCacheSize: 16,
			VectorCacheTTL:  time.Minute,
		})
		require.NoError(t, err)
		server := setupTestServer(t, enc)

		rec := postJSON(t, server, "/api/v1/keys/invalidate", "firm-a", struct{}{})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp InvalidateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "invalidated", resp.Status)
	})
}

func TestServerLifecycle(t *testing.T) {
	server := setupTestServer(t, nil)
	server.config.Port = 0

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	select {
	case err := <-errChan:
		assert.True(t, err == nil || err == http.ErrServerClosed)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("adds request ID to response", func(t *testing.T) {
		server := setupTestServer(t, nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("recovers from panic", func(t *testing.T) {
		server := setupTestServer(t, nil)
		server.echo.GET("/panic", func(echo.Context) error {
			panic("test panic")
		})

		req := httptest.NewRequest(http.MethodGet, "/panic", nil)
		rec := httptest.NewRecorder()
		assert.NotPanics(t, func() {
			server.echo.ServeHTTP(rec, req)
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
