package audit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pulseid/pulseid/internal/platform/auth"
	"github.com/pulseid/pulseid/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole("ADMIN"))
	admin.GET("/access-logs", h.ListAccessLogs)
}

// ListAccessLogs is the administrative view over the full log, filterable by
// action, actor, and patient.
func (h *Handler) ListAccessLogs(c echo.Context) error {
	pg := pagination.FromContext(c)

	params := map[string]string{}
	for _, key := range []string{"action", "actor", "patient"} {
		if v := c.QueryParam(key); v != "" {
			params[key] = v
		}
	}

	items, total, err := h.svc.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
