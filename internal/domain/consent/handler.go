package consent

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pulseid/pulseid/internal/platform/auth"
)

type Handler struct {
	svc       *Service
	directory Directory
}

func NewHandler(svc *Service, directory Directory) *Handler {
	return &Handler{svc: svc, directory: directory}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	patient := api.Group("/sharing", auth.RequireRole("PATIENT"))
	patient.POST("", h.CreateGrant)
	patient.GET("", h.ListGrants)
	patient.GET("/history", h.GrantHistory)
	patient.POST("/:id/revoke", h.RevokeGrant)

	api.GET("/sharing-history", h.SharingHistory, auth.RequireRole("PATIENT"))

	doctor := api.Group("/otp", auth.RequireRole("DOCTOR"))
	doctor.POST("/request", h.RequestOTP)
	doctor.POST("/verify", h.VerifyOTP)
}

// subject resolves the authenticated user to their patient record.
func (h *Handler) subject(c echo.Context) (*Subject, error) {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == uuid.Nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	s, err := h.directory.SubjectByUserID(c.Request().Context(), userID)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no patient profile for user")
	}
	return s, nil
}

// practitioner resolves the authenticated user to their doctor record.
func (h *Handler) practitioner(c echo.Context) (*Practitioner, error) {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == uuid.Nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	d, err := h.directory.PractitionerByUserID(c.Request().Context(), userID)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no doctor profile for user")
	}
	return d, nil
}

type createGrantRequest struct {
	DoctorID   uuid.UUID  `json:"doctor_id"`
	AccessType AccessType `json:"access_type"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// CreateGrant lets a patient share their record with a doctor.
func (h *Handler) CreateGrant(c echo.Context) error {
	subject, err := h.subject(c)
	if err != nil {
		return err
	}

	var req createGrantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.DoctorID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}
	if req.AccessType == "" {
		req.AccessType = AccessQRQuick
	}

	g, err := h.svc.Grant(c.Request().Context(), GrantParams{
		PatientID:  subject.ID,
		DoctorID:   req.DoctorID,
		AccessType: req.AccessType,
		ExpiresAt:  req.ExpiresAt,
		IPAddress:  c.RealIP(),
	})
	switch {
	case errors.Is(err, ErrInvalidType):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusBadRequest, "unknown doctor")
	case errors.Is(err, ErrDoctorUnverified):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, g)
}

// ListGrants returns the patient's currently effective grants.
func (h *Handler) ListGrants(c echo.Context) error {
	subject, err := h.subject(c)
	if err != nil {
		return err
	}
	grants, err := h.svc.ActiveGrants(c.Request().Context(), subject.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"grants": grants})
}

// RevokeGrant withdraws one of the patient's grants.
func (h *Handler) RevokeGrant(c echo.Context) error {
	subject, err := h.subject(c)
	if err != nil {
		return err
	}
	grantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid grant id")
	}

	g, err := h.svc.Revoke(c.Request().Context(), grantID, subject.ID, c.RealIP())
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "grant not found")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, g)
}

// SharingHistory returns the patient's own access-log entries, newest first,
// capped at HistoryLimit. This backs the "who accessed my record" screen.
func (h *Handler) SharingHistory(c echo.Context) error {
	subject, err := h.subject(c)
	if err != nil {
		return err
	}
	entries, err := h.svc.AccessHistory(c.Request().Context(), subject.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"history": entries})
}

// GrantHistory returns the patient's full grant ledger, revoked and expired
// rows included, newest first.
func (h *Handler) GrantHistory(c echo.Context) error {
	subject, err := h.subject(c)
	if err != nil {
		return err
	}
	grants, err := h.svc.History(c.Request().Context(), subject.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"grants": grants})
}

type otpRequest struct {
	HealthID string `json:"health_id"`
	OTPCode  string `json:"otp_code,omitempty"`
}

// RequestOTP issues a one-time code delivered to the patient's phone. The
// response deliberately carries no code.
func (h *Handler) RequestOTP(c echo.Context) error {
	doc, err := h.practitioner(c)
	if err != nil {
		return err
	}

	var req otpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.HealthID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "health_id is required")
	}

	err = h.svc.RequestOTP(c.Request().Context(), doc.ID, req.HealthID, c.RealIP())
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "unknown health ID")
	case errors.Is(err, ErrDoctorUnverified):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrThrottled):
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"status": "otp_sent",
		"detail": "a code was sent to the patient's registered phone",
	})
}

// VerifyOTP exchanges a relayed code for a full-access grant.
func (h *Handler) VerifyOTP(c echo.Context) error {
	doc, err := h.practitioner(c)
	if err != nil {
		return err
	}

	var req otpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.HealthID == "" || req.OTPCode == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "health_id and otp_code are required")
	}

	g, err := h.svc.VerifyOTP(c.Request().Context(), doc.ID, req.HealthID, req.OTPCode, c.RealIP())
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "unknown health ID")
	case errors.Is(err, ErrDoctorUnverified):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidCode):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrExpired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, g)
}
