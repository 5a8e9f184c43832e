package dentition

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/dentition/positions", h.ListPositions)
	api.POST("/dentition/contiguity", h.CheckContiguity)
}

// PositionInfo describes one chart position.
type PositionInfo struct {
	ID    PositionID   `json:"id"`
	Arch  Arch         `json:"arch"`
	Index int          `json:"index"`
	Type  PositionType `json:"type"`
}

func (h *Handler) ListPositions(c echo.Context) error {
	all := All()
	out := make([]PositionInfo, 0, len(all))
	for _, id := range all {
		out = append(out, PositionInfo{ID: id, Arch: ArchOf(id), Index: IndexOf(id), Type: TypeOf(id)})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"positions": out,
		"sequences": map[Arch][]PositionID{
			ArchUpper: SequenceFor(ArchUpper),
			ArchLower: SequenceFor(ArchLower),
		},
	})
}

type contiguityRequest struct {
	Positions []PositionID `json:"positions"`
}

func (h *Handler) CheckContiguity(c echo.Context) error {
	var req contiguityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	for _, id := range req.Positions {
		if !Valid(id) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid position: "+string(id))
		}
	}
	return c.JSON(http.StatusOK, map[string]bool{"contiguous": IsContiguous(req.Positions)})
}
