package handler

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/crew-bid-api/internal/dto"
	internalmiddleware "github.com/noah-isme/crew-bid-api/internal/middleware"
	"github.com/noah-isme/crew-bid-api/internal/models"
	"github.com/noah-isme/crew-bid-api/internal/service"
	appErrors "github.com/noah-isme/crew-bid-api/pkg/errors"
	"github.com/noah-isme/crew-bid-api/pkg/logger"
	"github.com/noah-isme/crew-bid-api/pkg/response"
)

type bidCompiler interface {
	ValidateConstraints(ctx context.Context, req dto.CompileRequest) (*models.ValidationResult, error)
	Optimize(ctx context.Context, req dto.CompileRequest) (*dto.OptimizeResponse, error)
	GenerateLayers(ctx context.Context, req dto.CompileRequest) (*dto.LayersResponse, error)
	Explain(ctx context.Context, sessionID, candidateID string) (*dto.ExplainResponse, error)
	Export(ctx context.Context, sessionID, hash string) (*dto.ExportResponse, *models.ExportArtifact, error)
}

type exportRenderer interface {
	Render(artifact models.ExportArtifact, format string) (*service.RenderedExport, error)
	OpenDownload(token string) (*os.File, string, error)
}

// BidHandler exposes the bid compiler endpoints.
type BidHandler struct {
	compiler bidCompiler
	exports  exportRenderer
}

// NewBidHandler constructs the handler.
func NewBidHandler(compiler *service.BidCompilerService, exports *service.ExportService) *BidHandler {
	return &BidHandler{compiler: compiler, exports: exports}
}

// Validate godoc
// @Summary Validate preferences against work rules and the trip pool
// @Tags Bids
// @Accept json
// @Produce json
// @Param payload body dto.CompileRequest true "Compile request"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /bids/validate [post]
func (h *BidHandler) Validate(c *gin.Context) {
	req, ok := h.bindCompileRequest(c)
	if !ok {
		return
	}
	result, err := h.compiler.ValidateConstraints(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, internalmiddleware.ExtractMeta(c))
}

// Optimize godoc
// @Summary Generate ranked schedule candidates
// @Description Candidates are retained in the bid session returned in the X-Bid-Session header.
// @Tags Bids
// @Accept json
// @Produce json
// @Param payload body dto.CompileRequest true "Compile request"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /bids/optimize [post]
func (h *BidHandler) Optimize(c *gin.Context) {
	req, ok := h.bindCompileRequest(c)
	if !ok {
		return
	}
	result, err := h.compiler.Optimize(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header(logger.SessionHeader, result.SessionID)
	internalmiddleware.SetMeta(c, "heuristic", result.Heuristic)
	internalmiddleware.SetMeta(c, "candidates", len(result.Candidates))
	response.JSON(c, http.StatusOK, result, internalmiddleware.ExtractMeta(c))
}

// Layers godoc
// @Summary Generate the layered bid and its export artifact
// @Tags Bids
// @Accept json
// @Produce json
// @Param payload body dto.CompileRequest true "Compile request"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /bids/layers [post]
func (h *BidHandler) Layers(c *gin.Context) {
	req, ok := h.bindCompileRequest(c)
	if !ok {
		return
	}
	result, err := h.compiler.GenerateLayers(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header(logger.SessionHeader, result.SessionID)
	internalmiddleware.SetMeta(c, "heuristic", result.Heuristic)
	response.JSON(c, http.StatusOK, result, internalmiddleware.ExtractMeta(c))
}

// Explain godoc
// @Summary Explain a candidate's score
// @Tags Bids
// @Produce json
// @Param sessionId path string true "Bid session ID"
// @Param candidateId path string true "Candidate ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /bids/sessions/{sessionId}/candidates/{candidateId}/explain [get]
func (h *BidHandler) Explain(c *gin.Context) {
	result, err := h.compiler.Explain(c.Request.Context(), c.Param("sessionId"), c.Param("candidateId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, internalmiddleware.ExtractMeta(c))
}

// Export godoc
// @Summary Fetch an export artifact
// @Description Without a format the artifact text is returned in the envelope. format=text, csv or pdf streams a file.
// @Tags Bids
// @Produce json
// @Param sessionId path string true "Bid session ID"
// @Param hash path string true "Export hash"
// @Param format query string false "text, csv or pdf"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /bids/sessions/{sessionId}/exports/{hash} [get]
func (h *BidHandler) Export(c *gin.Context) {
	result, artifact, err := h.compiler.Export(c.Request.Context(), c.Param("sessionId"), c.Param("hash"))
	if err != nil {
		response.Error(c, err)
		return
	}
	format := strings.TrimSpace(c.Query("format"))
	if format == "" || h.exports == nil {
		response.JSON(c, http.StatusOK, result, internalmiddleware.ExtractMeta(c))
		return
	}
	rendered, err := h.exports.Render(*artifact, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, rendered.Filename, rendered.ContentType, rendered.Body)
}

// Download godoc
// @Summary Download an archived export via signed token
// @Tags Bids
// @Produce plain
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /bids/downloads/{token} [get]
func (h *BidHandler) Download(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrExportNotFound, "export archive disabled"))
		return
	}
	file, name, err := h.exports.OpenDownload(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), "text/plain; charset=utf-8", file, map[string]string{
		"Content-Disposition": "attachment; filename=\"" + name + "\"",
	})
}

func (h *BidHandler) bindCompileRequest(c *gin.Context) (dto.CompileRequest, bool) {
	var req dto.CompileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid compile payload"))
		return req, false
	}
	if req.SessionID == "" {
		req.SessionID = strings.TrimSpace(c.GetHeader(logger.SessionHeader))
	}
	return req, true
}
