package handler

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"github.com/kyiku/slide-textguard-back/internal/controller"
	"github.com/kyiku/slide-textguard-back/internal/logging"
	"github.com/kyiku/slide-textguard-back/internal/response"
	"github.com/kyiku/slide-textguard-back/internal/scene"
	"github.com/kyiku/slide-textguard-back/internal/solver"
)

// SolveHandler runs the solver on scenes sent in the request body.
// Nothing is stored between requests.
type SolveHandler struct {
	settings controller.Settings
	logger   *log.Logger
}

// NewSolveHandler creates a new SolveHandler.
func NewSolveHandler(settings controller.Settings, logger *log.Logger) *SolveHandler {
	return &SolveHandler{
		settings: settings,
		logger:   logging.OrDefault(logger),
	}
}

// Nearest returns the closest valid top-left for the scene's query box.
// top_left is null when no valid position exists.
func (h *SolveHandler) Nearest(c echo.Context) error {
	var s scene.Scene
	if err := c.Bind(&s); err != nil {
		return response.ErrorWithCode(c, http.StatusBadRequest, response.CodeInvalidRequest, "リクエストの解析に失敗しました")
	}

	p, maskOK, err := s.Nearest(h.settings)
	if err != nil {
		return response.FromError(c, err)
	}
	if !maskOK {
		h.logger.Warn("ignoring malformed mask", "path", c.Path())
	}

	var topLeft interface{}
	if p.Found() {
		topLeft = p.TopLeft
	}
	return response.Success(c, map[string]interface{}{
		"found":        p.Found(),
		"top_left":     topLeft,
		"status":       p.Status,
		"evaluated":    p.Evaluated,
		"mask_ignored": !maskOK,
	})
}

// Enforce runs the sequential enforcer over the scene's items.
func (h *SolveHandler) Enforce(c echo.Context) error {
	var s scene.Scene
	if err := c.Bind(&s); err != nil {
		return response.ErrorWithCode(c, http.StatusBadRequest, response.CodeInvalidRequest, "リクエストの解析に失敗しました")
	}

	report, maskOK, err := s.Enforce(h.settings)
	if err != nil {
		return response.FromError(c, err)
	}
	if !maskOK {
		h.logger.Warn("ignoring malformed mask", "path", c.Path())
	}

	corrections := report.Corrections
	if corrections == nil {
		corrections = []solver.Correction{}
	}
	return response.Success(c, map[string]interface{}{
		"corrections":  corrections,
		"layout":       report.Layout,
		"passes":       report.Passes,
		"mask_ignored": !maskOK,
	})
}
