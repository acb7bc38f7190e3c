package patient

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pulseid/pulseid/internal/domain/audit"
	"github.com/pulseid/pulseid/internal/domain/consent"
	"github.com/pulseid/pulseid/internal/domain/doctor"
	"github.com/pulseid/pulseid/internal/platform/auth"
	"github.com/pulseid/pulseid/pkg/pagination"
)

type Handler struct {
	svc      *Service
	doctors  *doctor.Service
	consents *consent.Service
	audit    *audit.Service
}

func NewHandler(svc *Service, doctors *doctor.Service, consents *consent.Service, auditSvc *audit.Service) *Handler {
	return &Handler{svc: svc, doctors: doctors, consents: consents, audit: auditSvc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	me := api.Group("/patients/me", auth.RequireRole("PATIENT"))
	me.GET("", h.MyProfile)
	me.PUT("", h.UpdateProfile)
	me.GET("/access-history", h.AccessHistory)
	me.GET("/contacts", h.ListContacts)
	me.POST("/contacts", h.AddContact)
	me.DELETE("/contacts/:id", h.RemoveContact)

	api.GET("/patients", h.ListPatients, auth.RequireRole("ADMIN"))
	api.GET("/patients/:health_id", h.GetByHealthID, auth.RequireRole("DOCTOR", "PATIENT", "ADMIN"))
}

func (h *Handler) mine(c echo.Context) (*Patient, error) {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == uuid.Nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	p, err := h.svc.GetByUserID(c.Request().Context(), userID)
	if errors.Is(err, ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no patient profile for user")
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return p, nil
}

func (h *Handler) MyProfile(c echo.Context) error {
	p, err := h.mine(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

type profileRequest struct {
	DateOfBirth       *time.Time `json:"date_of_birth,omitempty"`
	Gender            string     `json:"gender,omitempty"`
	ContactNumber     string     `json:"contact_number,omitempty"`
	Address           string     `json:"address,omitempty"`
	BloodGroup        string     `json:"blood_group,omitempty"`
	OrganDonor        bool       `json:"organ_donor"`
	Allergies         string     `json:"allergies,omitempty"`
	ChronicConditions string     `json:"chronic_conditions,omitempty"`
}

func (r profileRequest) params() ProfileParams {
	return ProfileParams{
		DateOfBirth:       r.DateOfBirth,
		Gender:            r.Gender,
		ContactNumber:     r.ContactNumber,
		Address:           r.Address,
		BloodGroup:        r.BloodGroup,
		OrganDonor:        r.OrganDonor,
		Allergies:         r.Allergies,
		ChronicConditions: r.ChronicConditions,
	}
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	p, err := h.mine(c)
	if err != nil {
		return err
	}

	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	updated, err := h.svc.UpdateProfile(c.Request().Context(), p.ID, req.params())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

// GetByHealthID is the QR resolution endpoint. The owner and admins see the
// full record; a doctor goes through the consent engine and gets a view
// redacted to their authorization level. Every doctor attempt, allowed or
// denied, lands in the access log before the response is written.
func (h *Handler) GetByHealthID(c echo.Context) error {
	ctx := c.Request().Context()

	p, err := h.svc.GetByHealthID(ctx, c.Param("health_id"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	switch auth.RoleFromContext(ctx) {
	case "ADMIN":
		return c.JSON(http.StatusOK, p)
	case "PATIENT":
		if p.UserID != auth.UserIDFromContext(ctx) {
			return echo.NewHTTPError(http.StatusForbidden, "patients may only view their own profile")
		}
		return c.JSON(http.StatusOK, p)
	}

	doc, err := h.doctors.GetByUserID(ctx, auth.UserIDFromContext(ctx))
	if errors.Is(err, doctor.ErrNotFound) {
		return echo.NewHTTPError(http.StatusForbidden, "no doctor profile for user")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	decision, err := h.consents.Authorize(ctx, doc.ID, p.ID, c.RealIP())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if !decision.Allowed {
		if _, err := h.audit.Record(ctx, audit.RecordParams{
			ActorID:   &doc.UserID,
			PatientID: &p.ID,
			Action:    audit.ActionViewProfile,
			Details:   fmt.Sprintf("Denied profile view by Dr. %s: %s", doc.FullName, decision.Reason),
			IPAddress: c.RealIP(),
		}); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return echo.NewHTTPError(http.StatusForbidden, decision.Reason)
	}

	if _, err := h.audit.Record(ctx, audit.RecordParams{
		ActorID:   &doc.UserID,
		PatientID: &p.ID,
		Action:    audit.ActionViewProfile,
		Details:   fmt.Sprintf("Profile viewed by Dr. %s (%s access)", doc.FullName, decision.AccessType),
		IPAddress: c.RealIP(),
	}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	view := p.View(doc.AuthorizationLevel)
	view["access"] = decision
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// AccessHistory shows the patient who touched their record.
func (h *Handler) AccessHistory(c echo.Context) error {
	p, err := h.mine(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	entries, err := h.audit.HistoryForPatient(c.Request().Context(), p.ID, pg.Limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"history": entries})
}

type contactRequest struct {
	Name           string `json:"name"`
	Relationship   string `json:"relationship,omitempty"`
	Phone          string `json:"phone"`
	CanGrantAccess bool   `json:"can_grant_access"`
}

func (h *Handler) AddContact(c echo.Context) error {
	p, err := h.mine(c)
	if err != nil {
		return err
	}

	var req contactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || req.Phone == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and phone are required")
	}

	contact := &EmergencyContact{
		PatientID:      p.ID,
		Name:           req.Name,
		Relationship:   req.Relationship,
		Phone:          req.Phone,
		CanGrantAccess: req.CanGrantAccess,
	}
	if err := h.svc.AddEmergencyContact(c.Request().Context(), contact); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, contact)
}

func (h *Handler) ListContacts(c echo.Context) error {
	p, err := h.mine(c)
	if err != nil {
		return err
	}
	contacts, err := h.svc.EmergencyContacts(c.Request().Context(), p.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"contacts": contacts})
}

func (h *Handler) RemoveContact(c echo.Context) error {
	p, err := h.mine(c)
	if err != nil {
		return err
	}
	contactID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid contact id")
	}

	err = h.svc.RemoveEmergencyContact(c.Request().Context(), p.ID, contactID)
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "contact not found")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
