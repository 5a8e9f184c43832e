package labrequest

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dentallab/labdesk/internal/domain/dentition"
	"github.com/dentallab/labdesk/internal/domain/treatment"
	"github.com/dentallab/labdesk/internal/platform/auth"
	"github.com/dentallab/labdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – doctor, admin
	readGroup := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin))
	readGroup.GET("/requests", h.ListRequests)
	readGroup.GET("/requests/:id", h.GetRequest)

	// Workflow endpoints
	api.POST("/requests/:id/sign", h.SignRequest, auth.RequireRole(auth.RoleDoctor))
	api.POST("/requests/:id/reject", h.RejectRequest, auth.RequireRole(auth.RoleAdmin))

	// Editing sessions – doctor, admin
	sess := api.Group("/sessions", auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin))
	sess.POST("", h.OpenSession)
	sess.GET("/:id", h.GetSession)
	sess.DELETE("/:id", h.DiscardSession)
	sess.POST("/:id/toggle", h.Toggle)
	sess.POST("/:id/commit", h.Commit)
	sess.DELETE("/:id/selection", h.CancelSelection)
	sess.DELETE("/:id/groups/:groupId", h.RemoveGroup)
	sess.POST("/:id/groups/remove-containing", h.RemoveGroupContaining)
	sess.PUT("/:id/details", h.UpdateDetails)
	sess.PUT("/:id/pricing", h.UpdatePricing)
	sess.GET("/:id/quote", h.GetQuote)
	sess.GET("/:id/changes", h.GetChanges)
	sess.POST("/:id/save", h.Save)
}

// httpError maps workflow errors onto status codes.
func httpError(err error) error {
	var te *TransitionError
	switch {
	case treatment.IsValidation(err), errors.As(err, &te):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrSessionNotFound), errors.Is(err, treatment.ErrGroupNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrVersionConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidPosition):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func identity(c echo.Context) auth.Identity {
	return auth.IdentityFromContext(c.Request().Context())
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) session(c echo.Context) (*Session, error) {
	id, err := parseID(c, "id")
	if err != nil {
		return nil, err
	}
	s, err := h.svc.Sessions().Get(id, identity(c).UserID)
	if err != nil {
		return nil, httpError(err)
	}
	return s, nil
}

// -- Requests --

func (h *Handler) ListRequests(c echo.Context) error {
	pg := pagination.FromContext(c)
	status := Status(c.QueryParam("status"))
	items, total, err := h.svc.List(c.Request().Context(), identity(c), status, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Request{}
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset)
	resp.Links = pg.Links(c.Request().URL.Path, total, url.Values{"status": {string(status)}})
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetRequest(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	req, err := h.svc.Get(c.Request().Context(), identity(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) SignRequest(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	req, err := h.svc.Sign(c.Request().Context(), identity(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) RejectRequest(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req, err := h.svc.Reject(c.Request().Context(), identity(c), id, body.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, req)
}

// -- Sessions --

func (h *Handler) OpenSession(c echo.Context) error {
	var body struct {
		RequestID *uuid.UUID `json:"request_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var (
		s   *Session
		err error
	)
	if body.RequestID == nil {
		s, err = h.svc.OpenNew(identity(c))
	} else {
		s, err = h.svc.Open(c.Request().Context(), identity(c), *body.RequestID)
	}
	if err != nil {
		return httpError(err)
	}
	v, err := s.View()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetSession(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	v, err := s.View()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) DiscardSession(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	h.svc.Discard(s)
	return c.NoContent(http.StatusNoContent)
}

type positionBody struct {
	Position dentition.PositionID `json:"position"`
}

func (h *Handler) Toggle(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var body positionBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := s.Toggle(body.Position)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Commit(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	g, err := s.Commit()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"group": g,
		"color": g.Color(),
	})
}

func (h *Handler) CancelSelection(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	s.CancelSelection()
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RemoveGroup(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	groupID, err := parseID(c, "groupId")
	if err != nil {
		return err
	}
	if err := s.RemoveGroup(groupID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RemoveGroupContaining(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var body positionBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	g, err := s.RemoveGroupContaining(body.Position)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, g)
}

func (h *Handler) UpdateDetails(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var d Details
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.UpdateDetails(d); err != nil {
		return httpError(err)
	}
	v, err := s.View()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) UpdatePricing(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var p PricingUpdate
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.UpdatePricing(p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s.Quote())
}

func (h *Handler) GetQuote(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.Quote())
}

func (h *Handler) GetChanges(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	changes, err := s.Changes()
	if err != nil {
		return httpError(err)
	}
	paths := make([]string, len(changes))
	for i, ch := range changes {
		paths[i] = ch.Path
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"changed": paths,
		"changes": changes,
	})
}

func (h *Handler) Save(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	req, err := h.svc.Save(c.Request().Context(), s)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, req)
}
