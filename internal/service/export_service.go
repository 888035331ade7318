package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/crew-bid-api/internal/models"
	appErrors "github.com/noah-isme/crew-bid-api/pkg/errors"
	"github.com/noah-isme/crew-bid-api/pkg/export"
	"github.com/noah-isme/crew-bid-api/pkg/jobs"
	"github.com/noah-isme/crew-bid-api/pkg/storage"
)

// Export formats served for an artifact.
const (
	ExportFormatText = "text"
	ExportFormatCSV  = "csv"
	ExportFormatPDF  = "pdf"

	archiveJobType = "bid_export_archive"
)

type archiveStore interface {
	Put(key string, data []byte) (bool, error)
	Open(key string) (*os.File, error)
	Prune(maxAge time.Duration) ([]string, error)
}

type downloadSigner interface {
	Sign(hash, key string) (string, time.Time, error)
	Verify(token string) (storage.DownloadToken, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// RenderedExport is an artifact rendition ready to send.
type RenderedExport struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders export artifacts and archives them to disk through a
// background queue. Archiving is optional; without storage the service only
// renders.
type ExportService struct {
	archive archiveStore
	signer  downloadSigner
	queue   jobDispatcher
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService. archive, signer and queue may
// be nil when archiving is disabled.
func NewExportService(archive archiveStore, signer downloadSigner, queue jobDispatcher, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		archive: archive,
		signer:  signer,
		queue:   queue,
		csv:     csv,
		pdf:     pdf,
		logger:  logger,
		cfg:     cfg,
	}
}

// SetQueue attaches the archive queue once it has been built around Handle.
func (s *ExportService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// ArchiveEnabled reports whether artifacts are written to disk.
func (s *ExportService) ArchiveEnabled() bool {
	return s != nil && s.archive != nil && s.signer != nil && s.queue != nil
}

// Archive queues the artifact to be written to the archive. Failures are logged;
// the artifact stays available from its session either way.
func (s *ExportService) Archive(artifact models.ExportArtifact) bool {
	if !s.ArchiveEnabled() {
		return false
	}
	if err := s.queue.Enqueue(jobs.Job{ID: artifact.Hash, Type: archiveJobType, Payload: artifact}); err != nil {
		s.logger.Warn("failed to queue export archive", zap.String("hash", artifact.Hash), zap.Error(err))
		return false
	}
	return true
}

// DownloadURL returns a signed link to the archived artifact, or an empty
// string when archiving is disabled.
func (s *ExportService) DownloadURL(artifact models.ExportArtifact) string {
	if !s.ArchiveEnabled() {
		return ""
	}
	token, _, err := s.signer.Sign(artifact.Hash, archiveKey(artifact))
	if err != nil {
		s.logger.Warn("failed to sign export download", zap.String("hash", artifact.Hash), zap.Error(err))
		return ""
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return fmt.Sprintf("%s/bids/downloads/%s", prefix, token)
}

// Handle writes a queued artifact to the archive. Re-archiving a hash is a
// no-op.
func (s *ExportService) Handle(_ context.Context, job jobs.Job) error {
	artifact, ok := job.Payload.(models.ExportArtifact)
	if !ok {
		return fmt.Errorf("job %s carries %T, want export artifact", job.ID, job.Payload)
	}
	if s.archive == nil {
		return fmt.Errorf("export archive not configured")
	}
	created, err := s.archive.Put(archiveKey(artifact), []byte(artifact.Content))
	if err != nil {
		return err
	}
	s.logger.Debug("export archived",
		zap.String("hash", artifact.Hash),
		zap.String("month", artifact.Month),
		zap.Bool("created", created))
	return nil
}

// OpenDownload validates a signed token and opens the archived file.
func (s *ExportService) OpenDownload(token string) (*os.File, string, error) {
	if !s.ArchiveEnabled() {
		return nil, "", appErrors.Clone(appErrors.ErrExportNotFound, "export archive disabled")
	}
	parsed, err := s.signer.Verify(token)
	switch {
	case errors.Is(err, storage.ErrTokenExpired):
		return nil, "", appErrors.Wrap(err, appErrors.ErrExportNotFound.Code, appErrors.ErrExportNotFound.Status, "download link expired")
	case err != nil:
		return nil, "", appErrors.Wrap(err, appErrors.ErrExportNotFound.Code, appErrors.ErrExportNotFound.Status, "download link invalid")
	}
	file, err := s.archive.Open(parsed.Key)
	switch {
	case errors.Is(err, storage.ErrNotArchived):
		return nil, "", appErrors.Wrap(err, appErrors.ErrExportNotFound.Code, appErrors.ErrExportNotFound.Status, "export not archived yet")
	case err != nil:
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open archived export")
	}
	return file, path.Base(parsed.Key), nil
}

// Cleanup removes archived files older than ttl (defaults to the configured ResultTTL).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if s == nil || s.archive == nil {
		return nil, nil
	}
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.archive.Prune(ttl)
}

// Render produces the requested rendition of an artifact. The text rendition
// is the stored content, byte for byte.
func (s *ExportService) Render(artifact models.ExportArtifact, format string) (*RenderedExport, error) {
	base := fmt.Sprintf("bid_layers_%s_%s", artifact.Month, shortHash(artifact.Hash))
	switch strings.ToLower(format) {
	case "", ExportFormatText:
		return &RenderedExport{Filename: base + ".txt", ContentType: "text/plain; charset=utf-8", Body: []byte(artifact.Content)}, nil
	case ExportFormatCSV:
		body, err := s.csv.Render(layerDataset(artifact))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &RenderedExport{Filename: base + ".csv", ContentType: "text/csv", Body: body}, nil
	case ExportFormatPDF:
		body, err := s.pdf.Render(layerDataset(artifact))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &RenderedExport{Filename: base + ".pdf", ContentType: "application/pdf", Body: body}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func layerDataset(artifact models.ExportArtifact) export.Dataset {
	data := export.Dataset{
		Title:   fmt.Sprintf("Bid layers %s", artifact.Month),
		Notes:   []string{"sha256 " + artifact.Hash},
		Headers: []string{"layer", "probability", "relaxation", "command", "description"},
		Widths:  []float64{0.6, 1, 1, 3, 4},
		// renditions of one artifact must not vary between requests
		CreatedAt: artifact.CreatedAt,
	}
	for _, layer := range artifact.Layers {
		for _, cmd := range layer.Commands {
			data.Rows = append(data.Rows, map[string]string{
				"layer":       strconv.Itoa(layer.LayerNumber),
				"probability": strconv.FormatFloat(layer.Probability, 'f', 3, 64),
				"relaxation":  strconv.Itoa(layer.Relaxation),
				"command":     cmd,
				"description": layer.Description,
			})
		}
	}
	return data
}

func archiveKey(artifact models.ExportArtifact) string {
	return fmt.Sprintf("%s/%s.txt", sanitizeFilename(artifact.Month), artifact.Hash)
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
