package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/castellan-dev/castellan/internal/services"
	appErrors "github.com/castellan-dev/castellan/pkg/errors"
	"github.com/castellan-dev/castellan/pkg/response"
)

// LedgerHandler serves the append-only role assignment history.
type LedgerHandler struct {
	ledger *services.LedgerService
}

// NewLedgerHandler constructs a LedgerHandler.
func NewLedgerHandler(ledger *services.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// GET /api/ledger
func (h *LedgerHandler) List(c *gin.Context) {
	opts := services.LedgerListOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "per_page", 50),
		Filters: services.LedgerFilters{
			UserID: c.Query("user_id"),
			RoleID: c.Query("role_id"),
		},
	}

	if since, ok := parseTimeQuery(c, "since"); ok {
		opts.Filters.Since = &since
	} else if c.Query("since") != "" {
		response.Error(c, appErrors.NewBadRequest("since must be an RFC 3339 timestamp"))
		return
	}
	if until, ok := parseTimeQuery(c, "until"); ok {
		opts.Filters.Until = &until
	} else if c.Query("until") != "" {
		response.Error(c, appErrors.NewBadRequest("until must be an RFC 3339 timestamp"))
		return
	}

	entries, total, err := h.ledger.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	totalPages := int(total) / perPage
	if int(total)%perPage != 0 {
		totalPages++
	}

	response.SuccessWithMeta(c, http.StatusOK, gin.H{"entries": entries}, &response.Meta{
		Page:       opts.Page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: totalPages,
	})
}

func parseTimeQuery(c *gin.Context, key string) (time.Time, bool) {
	value := c.Query(key)
	if value == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
