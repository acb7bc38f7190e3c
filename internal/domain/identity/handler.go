package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pulseid/pulseid/internal/domain/doctor"
	"github.com/pulseid/pulseid/internal/domain/patient"
	"github.com/pulseid/pulseid/internal/platform/auth"
	"github.com/pulseid/pulseid/internal/platform/db"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires the open endpoints onto public and the
// session-guarded ones onto api.
func (h *Handler) RegisterRoutes(public, api *echo.Group) {
	public.POST("/auth/register", h.Register)
	public.POST("/auth/login", h.Login)

	api.POST("/auth/logout", h.Logout)
	api.GET("/auth/me", h.Me)
	api.POST("/patients", h.RegisterPatient, auth.RequireRole("DOCTOR", "ADMIN"))
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`

	DateOfBirth       *time.Time `json:"date_of_birth,omitempty"`
	Gender            string     `json:"gender,omitempty"`
	ContactNumber     string     `json:"contact_number,omitempty"`
	Address           string     `json:"address,omitempty"`
	BloodGroup        string     `json:"blood_group,omitempty"`
	OrganDonor        bool       `json:"organ_donor"`
	Allergies         string     `json:"allergies,omitempty"`
	ChronicConditions string     `json:"chronic_conditions,omitempty"`

	HospitalID     *uuid.UUID `json:"hospital_id,omitempty"`
	LicenseNumber  string     `json:"license_number,omitempty"`
	Specialization string     `json:"specialization,omitempty"`
}

func (r registerRequest) params() RegisterParams {
	return RegisterParams{
		Email:    r.Email,
		Password: r.Password,
		FullName: r.FullName,
		Role:     r.Role,
		Profile: patient.ProfileParams{
			DateOfBirth:       r.DateOfBirth,
			Gender:            r.Gender,
			ContactNumber:     r.ContactNumber,
			Address:           r.Address,
			BloodGroup:        r.BloodGroup,
			OrganDonor:        r.OrganDonor,
			Allergies:         r.Allergies,
			ChronicConditions: r.ChronicConditions,
		},
		Practice: doctor.RegisterParams{
			HospitalID:     r.HospitalID,
			LicenseNumber:  r.LicenseNumber,
			Specialization: r.Specialization,
		},
	}
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.svc.Register(c.Request().Context(), req.params())
	switch {
	case errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, result)
}

// RegisterPatient is the desk-onboarding path: a doctor or admin creates a
// patient account and health ID on the patient's behalf.
func (h *Handler) RegisterPatient(c echo.Context) error {
	actorID := auth.UserIDFromContext(c.Request().Context())
	if actorID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.svc.RegisterPatientFor(c.Request().Context(), actorID, req.params(), c.RealIP())
	switch {
	case errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, result)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.svc.Login(c.Request().Context(), req.Email, req.Password,
		db.TenantFromContext(c.Request().Context()), c.RealIP())
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrInactive):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Logout(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	jti, _ := c.Get("jwt_id").(string)
	exp, ok := c.Get("jwt_exp").(time.Time)
	if !ok {
		exp = time.Now().Add(24 * time.Hour)
	}

	h.svc.Logout(userID, jti, exp)
	return c.JSON(http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *Handler) Me(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	u, err := h.svc.GetByID(c.Request().Context(), userID)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, u)
}
