package handler

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	gorilla "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/kyiku/slide-textguard-back/internal/logging"
	"github.com/kyiku/slide-textguard-back/internal/middleware"
	"github.com/kyiku/slide-textguard-back/internal/websocket"
)

// WebSocketHandler streams pointer and editing events for one canvas.
type WebSocketHandler struct {
	store    SessionStoreInterface
	upgrader gorilla.Upgrader
	logger   *log.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler. Browser connections are
// accepted from the same origins as CORS.
func NewWebSocketHandler(store SessionStoreInterface, logger *log.Logger, allowedOrigins ...string) *WebSocketHandler {
	return &WebSocketHandler{
		store: store,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.IsAllowedOrigin(origin, allowedOrigins)
			},
		},
		logger: logging.OrDefault(logger),
	}
}

// Connect upgrades the request and runs the event loop until the client leaves.
func (h *WebSocketHandler) Connect(c echo.Context) error {
	sess, ok := h.store.Get(c.Param("id"))
	if !ok {
		return canvasNotFound(c)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("websocket upgrade failed", "canvas", sess.ID, "err", err)
		return nil
	}
	defer conn.Close()

	logger := h.logger.With("canvas", sess.ID, "remote", c.RealIP())
	logger.Info("editor connected")
	ctx := logging.WithContext(c.Request().Context(), h.logger)
	if err := websocket.Serve(ctx, conn, sess); err != nil && !clientLeft(err) {
		logger.Warn("event loop ended", "err", err)
	}
	logger.Info("editor disconnected")
	return nil
}

// clientLeft reports whether err is an ordinary close from the browser.
func clientLeft(err error) bool {
	var ce *gorilla.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == gorilla.CloseNormalClosure || ce.Code == gorilla.CloseGoingAway || ce.Code == gorilla.CloseNoStatusReceived
}
