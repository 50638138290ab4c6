package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/audit-ledger/backend/internal/http/dto"
	"github.com/audit-ledger/backend/internal/middleware"
	"github.com/audit-ledger/backend/internal/models"
	"github.com/audit-ledger/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AuditHandler struct {
	queryService  *services.QueryService
	verifyService *services.VerifyService
	log           *zap.Logger
}

func NewAuditHandler(queryService *services.QueryService, verifyService *services.VerifyService, log *zap.Logger) *AuditHandler {
	return &AuditHandler{queryService: queryService, verifyService: verifyService, log: log}
}

func (h *AuditHandler) ListLogs(c *fiber.Ctx) error {
	orgID := middleware.GetOrgID(c)

	filter, err := parseFilter(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	pageSize := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "limit must be between 1 and 100"})
		}
		pageSize = n
	}

	page, err := h.queryService.Query(c.Context(), orgID, filter, pageSize, c.Query("token"))
	if err != nil {
		return h.queryError(c, err)
	}

	items := page.Items
	if items == nil {
		items = []models.AuditLogEntry{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.AuditLogPage{
		Items:     items,
		Count:     len(items),
		NextToken: page.NextToken,
	}})
}

func (h *AuditHandler) GetLog(c *fiber.Ctx) error {
	logID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid log id"})
	}

	entry, err := h.queryService.GetEntry(c.Context(), middleware.GetOrgID(c), logID)
	if err != nil {
		if errors.Is(err, services.ErrEntryNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "audit entry not found"})
		}
		return h.queryError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entry})
}

func (h *AuditHandler) VerifyChain(c *fiber.Ctx) error {
	report, err := h.verifyService.VerifyOrg(c.Context(), middleware.GetOrgID(c))
	if err != nil {
		return h.queryError(c, err)
	}

	resp := dto.VerifyResponse{
		OrgID:   report.OrgID,
		Entries: report.Entries,
		Valid:   report.Valid,
	}
	if !report.Valid {
		resp.BrokenAt = &report.BrokenAt
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: resp})
}

func (h *AuditHandler) queryError(c *fiber.Ctx, err error) error {
	var v *services.ValidationError
	switch {
	case errors.As(err, &v):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: v.Error()})
	case errors.Is(err, services.ErrUnscopedQuery):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "organization scope required"})
	default:
		h.log.Error("audit query failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
}

func parseFilter(c *fiber.Ctx) (services.QueryFilter, error) {
	var f services.QueryFilter

	if v := c.Query("actor"); v != "" {
		f.Actor = &v
	}
	if v := c.Query("action"); v != "" {
		f.Action = &v
	}
	if v := c.Query("resource"); v != "" {
		f.Resource = &v
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("invalid from timestamp, expected RFC3339")
		}
		f.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("invalid to timestamp, expected RFC3339")
		}
		f.To = &t
	}
	return f, nil
}
