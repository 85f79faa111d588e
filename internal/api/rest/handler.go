package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lumenart/curator/internal/api/rest/dto"
	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/importer"
	"github.com/lumenart/curator/internal/store"
	"github.com/lumenart/curator/internal/tracker"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler defines the interface for REST API handlers
//
//go:generate mockgen -source=handler.go -destination=../../mocks/api_handler.go -package=mocks -mock_names=Handler=MockAPIHandler
type Handler interface {
	// ImportNFTs runs an import batch for the named source
	// POST /api/v1/import/:source
	ImportNFTs(c *gin.Context)

	// ImportWallet imports every NFT an owner holds on the named source
	// POST /api/v1/import/:source/wallet
	ImportWallet(c *gin.Context)

	// RefetchArtwork re-runs the pipeline for one artwork with a sparse merge
	// POST /api/v1/artworks/:id/refetch
	RefetchArtwork(c *gin.Context)

	// GetArtwork retrieves a single artwork by ID
	// GET /api/v1/artworks/:id
	GetArtwork(c *gin.Context)

	// ListArtworks pages through artworks, newest first
	// GET /api/v1/artworks?offset=<offset>&limit=<limit>
	ListArtworks(c *gin.Context)

	// ListRetryableImports returns failed imports worth another run
	// GET /api/v1/imports/retryable?max_attempts=<n>&limit=<limit>
	ListRetryableImports(c *gin.Context)

	// RetryImport re-runs one failed import immediately
	// POST /api/v1/imports/:id/retry
	RetryImport(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	importer importer.Importer
	tracker  tracker.Tracker
	store    store.Store
}

// NewHandler creates a new REST API handler
func NewHandler(imp importer.Importer, tr tracker.Tracker, st store.Store) Handler {
	return &handler{
		importer: imp,
		tracker:  tr,
		store:    st,
	}
}

// ImportRequest is the body of an import call
type ImportRequest struct {
	NFTs []domain.SourceRef `json:"nfts" binding:"required"`
}

// ImportResponse reports per-item outcomes of one batch
type ImportResponse struct {
	BatchID        string                 `json:"batch_id"`
	SucceededCount int                    `json:"succeeded_count"`
	FailedCount    int                    `json:"failed_count"`
	Succeeded      []*dto.ArtworkResponse `json:"succeeded"`
	Failed         []importer.ItemFailure `json:"failed"`
}

// RefetchResponse reports which stored fields the fresh fetch changed
type RefetchResponse struct {
	Artwork       *dto.ArtworkResponse `json:"artwork"`
	ChangedFields []string             `json:"changed_fields"`
}

// ImportNFTs runs an import batch for the named source
func (h *handler) ImportNFTs(c *gin.Context) {
	source := domain.SourceName(c.Param("source"))
	if !domain.IsValidSource(source) {
		respondBadRequest(c, "Unknown source", string(source))
		return
	}

	var request ImportRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if len(request.NFTs) == 0 {
		respondValidationError(c, "nfts must not be empty")
		return
	}

	refs := make([]domain.SourceRef, 0, len(request.NFTs))
	for _, ref := range request.NFTs {
		ref.Source = source
		if ref.ContractAddress == "" && ref.TokenID == "" && ref.MetadataURL == "" {
			respondValidationError(c, "each item needs a contract address and token id, or a metadata url")
			return
		}
		refs = append(refs, ref)
	}

	result, err := h.importer.ImportBatch(c.Request.Context(), refs)
	if err != nil {
		respondInternalError(c, err, "Import batch failed", zap.String("source", string(source)))
		return
	}

	c.JSON(http.StatusOK, ImportResponse{
		BatchID:        result.BatchID,
		SucceededCount: len(result.Succeeded),
		FailedCount:    len(result.Failed),
		Succeeded:      dto.FromArtworks(result.Succeeded),
		Failed:         result.Failed,
	})
}

// WalletImportRequest names the wallet whose holdings should be imported
type WalletImportRequest struct {
	Owner string `json:"owner" binding:"required"`
}

// ImportWallet imports every NFT an owner holds on the named source
func (h *handler) ImportWallet(c *gin.Context) {
	source := domain.SourceName(c.Param("source"))
	if !domain.IsValidSource(source) {
		respondBadRequest(c, "Unknown source", string(source))
		return
	}

	var request WalletImportRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	result, err := h.importer.ImportWallet(c.Request.Context(), source, request.Owner)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMalformedSource):
			respondBadRequest(c, "Source does not support wallet listing", string(source))
		case errors.Is(err, domain.ErrSourceUnavailable):
			respondUpstreamError(c, err, "Source unavailable", zap.String("source", string(source)))
		default:
			respondInternalError(c, err, "Wallet import failed", zap.String("source", string(source)))
		}
		return
	}

	c.JSON(http.StatusOK, ImportResponse{
		BatchID:        result.BatchID,
		SucceededCount: len(result.Succeeded),
		FailedCount:    len(result.Failed),
		Succeeded:      dto.FromArtworks(result.Succeeded),
		Failed:         result.Failed,
	})
}

// RefetchArtwork re-runs the pipeline for one artwork with a sparse merge
func (h *handler) RefetchArtwork(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		respondBadRequest(c, "Invalid artwork id")
		return
	}

	result, err := h.importer.RefetchArtwork(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			respondNotFound(c, "Artwork not found")
		case errors.Is(err, domain.ErrSourceUnavailable):
			respondUpstreamError(c, err, "Source unavailable", zap.Int64("artwork_id", id))
		default:
			respondInternalError(c, err, "Refetch failed", zap.Int64("artwork_id", id))
		}
		return
	}

	c.JSON(http.StatusOK, RefetchResponse{
		Artwork:       dto.FromArtwork(result.Artwork),
		ChangedFields: result.ChangedFields,
	})
}

// GetArtwork retrieves a single artwork by ID
func (h *handler) GetArtwork(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		respondBadRequest(c, "Invalid artwork id")
		return
	}

	artwork, err := h.store.GetArtworkByID(c.Request.Context(), id)
	if err != nil {
		respondInternalError(c, err, "Failed to load artwork", zap.Int64("artwork_id", id))
		return
	}
	if artwork == nil {
		respondNotFound(c, "Artwork not found")
		return
	}

	c.JSON(http.StatusOK, dto.FromArtwork(artwork))
}

// ListArtworks pages through artworks, newest first
func (h *handler) ListArtworks(c *gin.Context) {
	offset, limit, err := parsePagination(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	artworks, err := h.store.ListArtworks(c.Request.Context(), offset, limit)
	if err != nil {
		respondInternalError(c, err, "Failed to list artworks")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":  dto.FromArtworks(artworks),
		"offset": offset,
		"limit":  limit,
	})
}

// ListRetryableImports returns failed imports worth another run
func (h *handler) ListRetryableImports(c *gin.Context) {
	maxAttempts := 0
	if raw := c.Query("max_attempts"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondValidationError(c, "max_attempts must be a non-negative integer")
			return
		}
		maxAttempts = parsed
	}

	_, limit, err := parsePagination(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	records, err := h.tracker.ListRetryable(c.Request.Context(), maxAttempts, limit)
	if err != nil {
		respondInternalError(c, err, "Failed to list retryable imports")
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": dto.FromImportRecords(records)})
}

// RetryImport re-runs one failed import immediately. The record is flipped to
// pending and the pipeline runs in-request; a failed re-run records itself as
// failed again, so the record never strands in pending.
func (h *handler) RetryImport(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		respondBadRequest(c, "Invalid import record id")
		return
	}

	record, err := h.tracker.MarkForRetry(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondNotFound(c, "Import record not found")
			return
		}
		if errors.Is(err, domain.ErrPersistence) {
			respondInternalError(c, err, "Failed to mark import for retry", zap.Int64("record_id", id))
			return
		}
		// Non-failed records cannot be retried
		respondBadRequest(c, "Import record is not retryable", err.Error())
		return
	}

	result, err := h.importer.ImportBatch(c.Request.Context(), []domain.SourceRef{record.SourceRef()})
	if err != nil {
		respondInternalError(c, err, "Retry import failed", zap.Int64("record_id", id))
		return
	}

	c.JSON(http.StatusOK, ImportResponse{
		BatchID:        result.BatchID,
		SucceededCount: len(result.Succeeded),
		FailedCount:    len(result.Failed),
		Succeeded:      dto.FromArtworks(result.Succeeded),
		Failed:         result.Failed,
	})
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseIDParam(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func parsePagination(c *gin.Context) (offset, limit int, err error) {
	offset = 0
	limit = defaultListLimit

	if raw := c.Query("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
	}
	return offset, limit, nil
}
