package doctor

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
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
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/me", h.Me, auth.RequireRole("DOCTOR"))
	api.GET("/doctors/pending", h.ListPending, auth.RequireRole("ADMIN"))
	api.POST("/doctors/:id/verify", h.VerifyDoctor, auth.RequireRole("ADMIN"))

	api.GET("/hospitals", h.ListHospitals)
	api.POST("/hospitals", h.CreateHospital, auth.RequireRole("ADMIN", "HOSPITAL_ADMIN"))

	api.POST("/patients/:health_id/consultations", h.AddConsultation, auth.RequireRole("DOCTOR"))
	api.GET("/patients/:health_id/consultations", h.ListConsultations, auth.RequireRole("DOCTOR", "PATIENT"))
}

func (h *Handler) me(c echo.Context) (*Doctor, error) {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == uuid.Nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	d, err := h.svc.GetByUserID(c.Request().Context(), userID)
	if errors.Is(err, ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no doctor profile for user")
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return d, nil
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	verifiedOnly := c.QueryParam("all") != "true" || auth.RoleFromContext(c.Request().Context()) != "ADMIN"

	items, total, err := h.svc.List(c.Request().Context(), verifiedOnly, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Me(c echo.Context) error {
	d, err := h.me(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListPending(c echo.Context) error {
	items, err := h.svc.ListPending(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"doctors": items})
}

type verifyRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason,omitempty"`
	Level   string `json:"authorization_level,omitempty"`
}

func (h *Handler) VerifyDoctor(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}

	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	d, err := h.svc.Verify(c.Request().Context(), doctorID, VerifyParams{
		Approve: req.Approve,
		Reason:  req.Reason,
		Level:   req.Level,
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
	case err != nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListHospitals(c echo.Context) error {
	items, err := h.svc.ListHospitals(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"hospitals": items})
}

func (h *Handler) CreateHospital(c echo.Context) error {
	var hosp Hospital
	if err := c.Bind(&hosp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.CreateHospital(c.Request().Context(), &hosp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, hosp)
}

type consultationRequest struct {
	Symptoms     string `json:"symptoms,omitempty"`
	Diagnosis    string `json:"diagnosis"`
	Prescription string `json:"prescription,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

func (h *Handler) AddConsultation(c echo.Context) error {
	d, err := h.me(c)
	if err != nil {
		return err
	}

	var req consultationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	cons, err := h.svc.AddConsultation(c.Request().Context(), d, c.Param("health_id"), ConsultationParams{
		Symptoms:     req.Symptoms,
		Diagnosis:    req.Diagnosis,
		Prescription: req.Prescription,
		Notes:        req.Notes,
	}, c.RealIP())
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, cons)
}

// ListConsultations serves two callers: the patient reading their own
// history, and a doctor whose grant carries record-read rights.
func (h *Handler) ListConsultations(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	healthID := c.Param("health_id")

	if auth.RoleFromContext(ctx) == "PATIENT" {
		ref, err := h.svc.patients.ResolveHealthID(ctx, healthID)
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		if ref.UserID != auth.UserIDFromContext(ctx) {
			return echo.NewHTTPError(http.StatusForbidden, "patients may only read their own records")
		}
		items, total, err := h.svc.ConsultationsForPatient(ctx, ref.ID, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}

	d, err := h.me(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.RecordsForDoctor(ctx, d, healthID, pg.Limit, pg.Offset, c.RealIP())
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
