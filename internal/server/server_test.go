package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/dsstrack/internal/config"
	"github.com/agenthands/dsstrack/internal/core"
	"github.com/agenthands/dsstrack/internal/core/common"
	"github.com/agenthands/dsstrack/internal/session"
)

type MockVectorSource struct {
	Vectors map[string][]float32
	Err     error
}

func (m *MockVectorSource) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := m.Vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

const companiesCSV = "name,city\nApple Inc.,Cupertino\nApple Incorporated,Cupertino\nBanana Co,Lima\n"

func newTestRouter(t *testing.T, src core.VectorSource) (*gin.Engine, *core.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := core.NewService(session.NewStore(0, nil, nil), src, core.DefaultOptions(), nil)
	n := 0
	svc.Grouper.IDGenerator = func() string {
		n++
		return fmt.Sprintf("group-%d", n)
	}
	cfg := config.Default().Server
	return NewServer(svc, cfg, nil).SetupRouter(), svc
}

func defaultSource() *MockVectorSource {
	return &MockVectorSource{Vectors: map[string][]float32{
		"Apple Inc.":         {1, 0, 0},
		"Apple Incorporated": {0.95, 0.312, 0},
		"Banana Co":          {0, 1, 0},
	}}
}

func multipartUpload(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func uploadCompanies(t *testing.T, r http.Handler) string {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartUpload(t, "companies.csv", []byte(companiesCSV)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)["session_id"].(string)
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env.Error.Code
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, defaultSource())
	w := doJSON(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}

func TestUpload(t *testing.T) {
	r, _ := newTestRouter(t, defaultSource())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartUpload(t, "companies.csv", []byte(companiesCSV)))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.NotEmpty(t, body["session_id"])
	assert.Equal(t, "companies.csv", body["filename"])
	assert.Equal(t, float64(3), body["rows"])
	assert.Equal(t, []any{"name", "city"}, body["columns"])
	assert.Len(t, body["preview"], 3)
}

func TestUpload_Errors(t *testing.T) {
	r, _ := newTestRouter(t, defaultSource())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartUpload(t, "notes.txt", []byte("hello")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "parse_failure", errorCode(t, w))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, multipartUpload(t, "empty.csv", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "parse_failure", errorCode(t, w))

	w = doJSON(r, http.MethodPost, "/upload", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", errorCode(t, w))
}

func TestUpload_TooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := core.NewService(session.NewStore(0, nil, nil), defaultSource(), core.DefaultOptions(), nil)
	cfg := config.Default().Server
	cfg.MaxUploadBytes = 64
	r := NewServer(svc, cfg, nil).SetupRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartUpload(t, "big.csv", bytes.Repeat([]byte("a,b\n"), 100)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestWorkflow(t *testing.T) {
	r, _ := newTestRouter(t, defaultSource())
	id := uploadCompanies(t, r)

	// export before analysis
	w := doJSON(r, http.MethodGet, "/export/"+id, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "session_not_analyzed", errorCode(t, w))

	w = doJSON(r, http.MethodPost, "/analyze", map[string]any{"session_id": id, "columns": []string{"name"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, 0.85, body["similarity_threshold"])
	assert.Equal(t, float64(1), body["duplicate_groups"])
	assert.Len(t, body["groups"], 1)
	assert.Equal(t, float64(2), body["total_potential_duplicates"])

	w = doJSON(r, http.MethodGet, "/session/"+id+"/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"group-1"}, decode(t, w)["pending_ids"])

	w = doJSON(r, http.MethodPost, "/review", map[string]any{"session_id": id, "duplicate_id": "group-1", "is_duplicate": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Equal(t, "confirmed", body["status"])
	assert.Equal(t, float64(1), body["total_reviewed"])
	assert.Equal(t, float64(1), body["total_groups"])

	w = doJSON(r, http.MethodGet, "/session/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, true, body["analyzed"])
	assert.Equal(t, []any{}, body["pending_ids"])
	assert.Equal(t, float64(1), body["duplicate_groups"])
	assert.Equal(t, float64(1), body["reviewed"])
	assert.Equal(t, float64(0), body["pending_review"])

	w = doJSON(r, http.MethodGet, "/export/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="companies_duplicate_report.xlsx"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte("PK"), w.Body.Bytes()[:2])

	w = doJSON(r, http.MethodDelete, "/session/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodGet, "/session/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown_session", errorCode(t, w))
}

func TestAnalyze_Errors(t *testing.T) {
	r, _ := newTestRouter(t, defaultSource())
	id := uploadCompanies(t, r)

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"missing session id", map[string]any{"columns": []string{"name"}}, http.StatusBadRequest, "invalid_request"},
		{"unknown session", map[string]any{"session_id": "nope", "columns": []string{"name"}}, http.StatusNotFound, "unknown_session"},
		{"unknown columns", map[string]any{"session_id": id, "columns": []string{"zip"}}, http.StatusBadRequest, "invalid_selection"},
		{"no columns", map[string]any{"session_id": id}, http.StatusBadRequest, "invalid_selection"},
		{"threshold zero", map[string]any{"session_id": id, "columns": []string{"name"}, "similarity_threshold": 0}, http.StatusBadRequest, "invalid_threshold"},
		{"threshold above one", map[string]any{"session_id": id, "columns": []string{"name"}, "similarity_threshold": 1.01}, http.StatusBadRequest, "invalid_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/analyze", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}

func TestAnalyze_EmbeddingUnavailable(t *testing.T) {
	src := &MockVectorSource{Err: fmt.Errorf("%w: connection refused", common.ErrEmbeddingUnavailable)}
	r, _ := newTestRouter(t, src)
	id := uploadCompanies(t, r)

	w := doJSON(r, http.MethodPost, "/analyze", map[string]any{"session_id": id, "columns": []string{"name"}})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "embedding_unavailable", errorCode(t, w))
}

func TestReview_Errors(t *testing.T) {
	r, _ := newTestRouter(t, defaultSource())
	id := uploadCompanies(t, r)

	w := doJSON(r, http.MethodPost, "/review", map[string]any{"session_id": id, "duplicate_id": "group-1", "is_duplicate": true})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(r, http.MethodPost, "/analyze", map[string]any{"session_id": id, "columns": []string{"name"}})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/review", map[string]any{"session_id": id, "duplicate_id": "group-9", "is_duplicate": true})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown_group", errorCode(t, w))

	w = doJSON(r, http.MethodPost, "/review", map[string]any{"session_id": id, "duplicate_id": "group-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", errorCode(t, w))

	w = doJSON(r, http.MethodPost, "/review", map[string]any{"session_id": id, "duplicate_id": "group-1", "is_duplicate": false})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "false_positive", decode(t, w)["status"])
}

func TestCORS(t *testing.T) {
	r, _ := newTestRouter(t, defaultSource())
	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
