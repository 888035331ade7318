package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/crew-bid-api/internal/dto"
	internalmiddleware "github.com/noah-isme/crew-bid-api/internal/middleware"
	"github.com/noah-isme/crew-bid-api/internal/models"
	"github.com/noah-isme/crew-bid-api/internal/service"
	appErrors "github.com/noah-isme/crew-bid-api/pkg/errors"
	"github.com/noah-isme/crew-bid-api/pkg/logger"
)

type bidCompilerMock struct {
	captured dto.CompileRequest
	err      error
}

func (m *bidCompilerMock) ValidateConstraints(ctx context.Context, req dto.CompileRequest) (*models.ValidationResult, error) {
	m.captured = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.ValidationResult{Score: 1, Violations: []string{}, Warnings: []string{}}, nil
}

func (m *bidCompilerMock) Optimize(ctx context.Context, req dto.CompileRequest) (*dto.OptimizeResponse, error) {
	m.captured = req
	if m.err != nil {
		return nil, m.err
	}
	return &dto.OptimizeResponse{
		SessionID:  "session-1",
		Month:      req.Month,
		Candidates: []dto.CandidateResponse{{CandidateID: "c1", Score: 0.8}},
	}, nil
}

func (m *bidCompilerMock) GenerateLayers(ctx context.Context, req dto.CompileRequest) (*dto.LayersResponse, error) {
	m.captured = req
	return &dto.LayersResponse{SessionID: "session-1", Month: req.Month, ExportHash: "abc"}, nil
}

func (m *bidCompilerMock) Explain(ctx context.Context, sessionID, candidateID string) (*dto.ExplainResponse, error) {
	if candidateID != "c1" {
		return nil, appErrors.Clone(appErrors.ErrCandidateNotFound, "candidate not found")
	}
	return &dto.ExplainResponse{Explanation: dto.Explanation{CandidateID: candidateID}}, nil
}

func (m *bidCompilerMock) Export(ctx context.Context, sessionID, hash string) (*dto.ExportResponse, *models.ExportArtifact, error) {
	if hash != "abc" {
		return nil, nil, appErrors.Clone(appErrors.ErrExportNotFound, "export not found")
	}
	artifact := &models.ExportArtifact{Hash: hash, Month: "2026-03", Content: "# BID LAYERS 2026-03\n"}
	return &dto.ExportResponse{Hash: hash, Month: artifact.Month, Content: artifact.Content}, artifact, nil
}

type exportRendererMock struct {
	format string
	path   string
}

func (m *exportRendererMock) Render(artifact models.ExportArtifact, format string) (*service.RenderedExport, error) {
	m.format = format
	return &service.RenderedExport{Filename: "bid.csv", ContentType: "text/csv", Body: []byte("layer,command\n")}, nil
}

func (m *exportRendererMock) OpenDownload(token string) (*os.File, string, error) {
	if token != "good" {
		return nil, "", appErrors.Clone(appErrors.ErrExportNotFound, "download link invalid or expired")
	}
	f, err := os.Open(m.path)
	return f, filepath.Base(m.path), err
}

func newBidRouter(h *BidHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(internalmiddleware.WithResponseMeta())
	r.POST("/bids/validate", h.Validate)
	r.POST("/bids/optimize", h.Optimize)
	r.POST("/bids/layers", h.Layers)
	r.GET("/bids/sessions/:sessionId/candidates/:candidateId/explain", h.Explain)
	r.GET("/bids/sessions/:sessionId/exports/:hash", h.Export)
	r.GET("/bids/downloads/:token", h.Download)
	return r
}

func postJSON(r http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBidHandlerOptimizeSetsSessionHeader(t *testing.T) {
	mockSvc := &bidCompilerMock{}
	r := newBidRouter(&BidHandler{compiler: mockSvc})

	w := postJSON(r, "/bids/optimize", `{"month":"2026-03","preferences":{"soft_prefs":{"weekend":0.8}}}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "session-1", w.Header().Get(logger.SessionHeader))
	assert.Equal(t, "2026-03", mockSvc.captured.Month)
	assert.Equal(t, 0.8, mockSvc.captured.Preferences.SoftPrefs["weekend"])

	var body struct {
		Data dto.OptimizeResponse   `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "c1", body.Data.Candidates[0].CandidateID)
	assert.Equal(t, float64(1), body.Meta["candidates"])
}

func TestBidHandlerSessionFromHeader(t *testing.T) {
	mockSvc := &bidCompilerMock{}
	r := newBidRouter(&BidHandler{compiler: mockSvc})

	w := postJSON(r, "/bids/layers", `{"month":"2026-03"}`, map[string]string{logger.SessionHeader: "existing"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "existing", mockSvc.captured.SessionID)
}

func TestBidHandlerInvalidPayload(t *testing.T) {
	r := newBidRouter(&BidHandler{compiler: &bidCompilerMock{}})

	w := postJSON(r, "/bids/validate", `{"month":`, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), appErrors.ErrValidation.Code)
}

func TestBidHandlerValidatePropagatesServiceError(t *testing.T) {
	r := newBidRouter(&BidHandler{compiler: &bidCompilerMock{err: appErrors.Clone(appErrors.ErrValidation, "month must be YYYY-MM")}})

	w := postJSON(r, "/bids/validate", `{"month":"March"}`, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "month must be YYYY-MM")
}

func TestBidHandlerExplainNotFound(t *testing.T) {
	r := newBidRouter(&BidHandler{compiler: &bidCompilerMock{}})

	req, _ := http.NewRequest(http.MethodGet, "/bids/sessions/s1/candidates/missing/explain", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestBidHandlerExportFormats(t *testing.T) {
	renderer := &exportRendererMock{}
	r := newBidRouter(&BidHandler{compiler: &bidCompilerMock{}, exports: renderer})

	req, _ := http.NewRequest(http.MethodGet, "/bids/sessions/s1/exports/abc", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# BID LAYERS 2026-03")

	req, _ = http.NewRequest(http.MethodGet, "/bids/sessions/s1/exports/abc?format=csv", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", renderer.format)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "bid.csv")

	req, _ = http.NewRequest(http.MethodGet, "/bids/sessions/s1/exports/zzz", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestBidHandlerDownload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layers.txt")
	require.NoError(t, os.WriteFile(path, []byte("# BID LAYERS 2026-03\n"), 0o644))
	r := newBidRouter(&BidHandler{compiler: &bidCompilerMock{}, exports: &exportRendererMock{path: path}})

	req, _ := http.NewRequest(http.MethodGet, "/bids/downloads/good", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# BID LAYERS 2026-03\n", w.Body.String())

	req, _ = http.NewRequest(http.MethodGet, "/bids/downloads/bad", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}
