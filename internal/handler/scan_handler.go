package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rollcall-io/rollcall-api/internal/dto"
	"github.com/rollcall-io/rollcall-api/internal/models"
	"github.com/rollcall-io/rollcall-api/internal/service"
	appErrors "github.com/rollcall-io/rollcall-api/pkg/errors"
	"github.com/rollcall-io/rollcall-api/pkg/response"
)

type scanService interface {
	RecordScan(ctx context.Context, input service.ScanInput) (*models.ScanResult, error)
}

// ScanHandler exposes the attendance scan endpoints.
type ScanHandler struct {
	service scanService
}

// NewScanHandler builds a new handler.
func NewScanHandler(service scanService) *ScanHandler {
	return &ScanHandler{service: service}
}

// Record godoc
// @Summary Record an attendance scan
// @Tags Scans
// @Accept json
// @Produce json
// @Param payload body dto.ScanRequest true "Scan payload"
// @Success 201 {object} response.Envelope
// @Router /scans [post]
func (h *ScanHandler) Record(c *gin.Context) {
	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid scan payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	result, err := h.service.RecordScan(c.Request.Context(), service.ScanInput{
		RoundID:           req.RoundID,
		Token:             req.Token,
		StudentID:         claims.UserID,
		CapturedAtClient:  req.CapturedAt,
		DeviceFingerprint: req.DeviceFingerprint,
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Sync godoc
// @Summary Replay offline scans in capture order
// @Tags Scans
// @Accept json
// @Produce json
// @Param payload body dto.SyncScansRequest true "Queued scans"
// @Success 200 {object} response.Envelope
// @Router /scans/sync [post]
func (h *ScanHandler) Sync(c *gin.Context) {
	var req dto.SyncScansRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid sync payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	results := make([]dto.SyncScanOutcome, 0, len(req.Scans))
	for _, item := range req.Scans {
		clientScanID := item.ClientScanID
		result, err := h.service.RecordScan(c.Request.Context(), service.ScanInput{
			RoundID:           item.RoundID,
			Token:             item.Token,
			StudentID:         claims.UserID,
			CapturedAtClient:  item.CapturedAt,
			DeviceFingerprint: item.DeviceFingerprint,
			Latitude:          item.Latitude,
			Longitude:         item.Longitude,
			ClientScanID:      &clientScanID,
		})
		if err != nil {
			appErr := appErrors.FromError(err)
			results = append(results, dto.SyncScanOutcome{
				ClientScanID: clientScanID,
				Recorded:     false,
				Error:        &dto.SyncScanError{Code: appErr.Code, Message: appErr.Message},
			})
			continue
		}
		results = append(results, dto.SyncScanOutcome{
			ClientScanID: clientScanID,
			Recorded:     true,
			Status:       result.Status,
		})
	}

	response.JSON(c, http.StatusOK, dto.SyncScansResponse{Results: results}, nil)
}
