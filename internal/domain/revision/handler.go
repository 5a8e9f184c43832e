package revision

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/revisions/diff", h.DiffRecords)
}

type diffRequest struct {
	Original Record   `json:"original"`
	Current  Record   `json:"current"`
	Paths    []string `json:"paths"`
}

type diffResponse struct {
	Changed []string `json:"changed"`
	Changes []Change `json:"changes"`
}

// DiffRecords compares two arbitrary records without a session.
func (h *Handler) DiffRecords(c echo.Context) error {
	var req diffRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Original == nil && req.Current == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "original or current is required")
	}
	changes := Compare(req.Original, req.Current, req.Paths)
	changed := make([]string, len(changes))
	for i, ch := range changes {
		changed[i] = ch.Path
	}
	return c.JSON(http.StatusOK, diffResponse{Changed: changed, Changes: changes})
}
