package risk

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/renalert/renalert/internal/platform/auth"
	"github.com/renalert/renalert/pkg/pagination"
)

// Assessor runs one assessment. The server wires in the engine's evaluator,
// which serializes assessments per patient; the raw service satisfies it too.
type Assessor interface {
	Evaluate(ctx context.Context, patientID uuid.UUID, trigger string) (*Snapshot, error)
}

type Handler struct {
	svc      *Service
	assessor Assessor
}

func NewHandler(svc *Service, assessor Assessor) *Handler {
	if assessor == nil {
		assessor = svc
	}
	return &Handler{svc: svc, assessor: assessor}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "clinician"))
	readGroup.GET("/patients/:id/risk", h.Latest)
	readGroup.GET("/patients/:id/risk/history", h.History)

	writeGroup := api.Group("", auth.RequireRole("admin", "clinician"))
	writeGroup.POST("/patients/:id/risk/evaluate", h.Evaluate)
	writeGroup.POST("/patients/:id/risk/repair-cache", h.RepairCache)
}

func (h *Handler) Latest(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	snap, err := h.svc.LatestSnapshot(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if snap == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no risk assessment")
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) History(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.History(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// Evaluate triggers a manual on-demand assessment outside the event stream.
func (h *Handler) Evaluate(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	snap, err := h.assessor.Evaluate(c.Request().Context(), patientID, TriggerManual)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) RepairCache(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	if err := h.svc.RepairCache(c.Request().Context(), patientID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "repaired"})
}
