package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"github.com/kyiku/slide-textguard-back/internal/controller"
	"github.com/kyiku/slide-textguard-back/internal/geom"
	"github.com/kyiku/slide-textguard-back/internal/logging"
	"github.com/kyiku/slide-textguard-back/internal/mask"
	"github.com/kyiku/slide-textguard-back/internal/overlay"
	"github.com/kyiku/slide-textguard-back/internal/response"
	"github.com/kyiku/slide-textguard-back/internal/session"
)

// SessionStoreInterface defines the interface for canvas session storage.
type SessionStoreInterface interface {
	Create(content geom.Rect, padding float64) *session.Session
	Get(id string) (*session.Session, bool)
	Delete(id string) bool
	Count() int
}

// MaskSource loads silhouette masks by object key.
type MaskSource interface {
	LoadMask(ctx context.Context, key string) (*mask.Mask, error)
}

// OverlayUploader stores rendered overlays and returns their public URL.
type OverlayUploader interface {
	UploadOverlay(ctx context.Context, png []byte) (string, error)
}

// CanvasHandler handles canvas, item and background requests.
type CanvasHandler struct {
	store          SessionStoreInterface
	masks          MaskSource
	uploader       OverlayUploader
	renderer       *overlay.Renderer
	contentPadding float64
	maxDimension   int
	logger         *log.Logger
}

// NewCanvasHandler creates a new CanvasHandler.
func NewCanvasHandler(store SessionStoreInterface, contentPadding float64, logger *log.Logger) *CanvasHandler {
	return &CanvasHandler{
		store:          store,
		renderer:       overlay.NewRenderer(overlay.DefaultPalette, 1),
		contentPadding: contentPadding,
		maxDimension:   overlay.DefaultMaxDimension,
		logger:         logging.OrDefault(logger),
	}
}

// SetMaskSource enables background masks referenced by key.
func (h *CanvasHandler) SetMaskSource(masks MaskSource) {
	h.masks = masks
}

// SetMaxDimension bounds the content and image rects a canvas accepts.
// n <= 0 keeps the default.
func (h *CanvasHandler) SetMaxDimension(n int) {
	if n > 0 {
		h.maxDimension = n
		h.renderer.WithMaxDimension(n)
	}
}

// SetOverlayUploader makes Overlay upload the PNG instead of returning it.
func (h *CanvasHandler) SetOverlayUploader(uploader OverlayUploader) {
	h.uploader = uploader
}

// ItemRequest places or replaces a text item.
type ItemRequest struct {
	ID       string    `json:"id"`
	Rect     geom.Rect `json:"rect"`
	MaxWidth float64   `json:"max_width"`
}

// CreateCanvasRequest opens a canvas.
type CreateCanvasRequest struct {
	Content        geom.Rect     `json:"content"`
	ContentPadding *float64      `json:"content_padding"`
	Items          []ItemRequest `json:"items"`
}

// BackgroundRequest replaces the image object. An empty rect removes it.
type BackgroundRequest struct {
	Rect    geom.Rect     `json:"rect"`
	Mask    *mask.Payload `json:"mask"`
	MaskKey string        `json:"mask_key"`
}

// LockRequest turns layout lock on or off.
type LockRequest struct {
	Locked bool `json:"locked"`
}

// ImageView describes the background without its mask bytes.
type ImageView struct {
	Rect       geom.Rect `json:"rect"`
	HasMask    bool      `json:"has_mask"`
	MaskWidth  int       `json:"mask_width,omitempty"`
	MaskHeight int       `json:"mask_height,omitempty"`
}

// CanvasView is the API form of a canvas.
type CanvasView struct {
	ID             string                  `json:"id"`
	Content        geom.Rect               `json:"content"`
	ContentPadding float64                 `json:"content_padding"`
	Allowed        geom.Rect               `json:"allowed"`
	Image          *ImageView              `json:"image"`
	Locked         bool                    `json:"locked"`
	Items          []controller.ItemUpdate `json:"items"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

func viewOf(ctl *controller.Controller) CanvasView {
	cv := ctl.Canvas()
	v := CanvasView{
		ID:             cv.ID,
		Content:        cv.Content,
		ContentPadding: cv.ContentPadding,
		Allowed:        cv.Allowed(),
		Locked:         cv.Locked,
		Items:          ctl.Items(),
		CreatedAt:      cv.CreatedAt,
		UpdatedAt:      cv.UpdatedAt,
	}
	if img := cv.Image; img != nil {
		v.Image = &ImageView{Rect: img.Rect, HasMask: img.Mask.Valid()}
		if v.Image.HasMask {
			v.Image.MaskWidth, v.Image.MaskHeight = img.Mask.Width, img.Mask.Height
		}
	}
	return v
}

// lookup finds the canvas named by the :id path parameter.
func (h *CanvasHandler) lookup(c echo.Context) (*session.Session, bool) {
	return h.store.Get(c.Param("id"))
}

func canvasNotFound(c echo.Context) error {
	return response.ErrorWithCode(c, http.StatusNotFound, response.CodeCanvasNotFound, "キャンバスが見つかりません")
}

func badRequest(c echo.Context) error {
	return response.ErrorWithCode(c, http.StatusBadRequest, response.CodeInvalidRequest, "リクエストの解析に失敗しました")
}

func (h *CanvasHandler) tooLarge(c echo.Context, field string) error {
	return response.ErrorWithCode(c, http.StatusBadRequest, response.CodeInvalidRequest,
		fmt.Sprintf("%sは%dpx以内で指定してください", field, h.maxDimension))
}

// Create opens a new canvas with optional initial items.
func (h *CanvasHandler) Create(c echo.Context) error {
	var req CreateCanvasRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}
	if req.Content.Empty() {
		return response.ErrorWithCode(c, http.StatusBadRequest, response.CodeInvalidRequest, "contentの幅と高さは正の値が必要です")
	}
	if !overlay.WithinBounds(req.Content, h.maxDimension) {
		return h.tooLarge(c, "content")
	}
	for _, it := range req.Items {
		if it.ID == "" {
			return response.ErrorWithCode(c, http.StatusBadRequest, response.CodeInvalidRequest, "itemsにはidが必要です")
		}
	}
	padding := h.contentPadding
	if req.ContentPadding != nil && *req.ContentPadding >= 0 {
		padding = *req.ContentPadding
	}

	sess := h.store.Create(req.Content, padding)
	var view CanvasView
	err := sess.Do(func(ctl *controller.Controller) error {
		for _, it := range req.Items {
			if _, err := ctl.UpsertItem(it.ID, it.Rect, it.MaxWidth); err != nil {
				return err
			}
		}
		view = viewOf(ctl)
		return nil
	})
	if err != nil {
		h.store.Delete(sess.ID)
		return response.FromError(c, err)
	}

	h.logger.Info("canvas created", "canvas", sess.ID, "items", len(req.Items))
	return response.Created(c, map[string]interface{}{
		"canvas": view,
	})
}

// Get returns a canvas.
func (h *CanvasHandler) Get(c echo.Context) error {
	sess, ok := h.lookup(c)
	if !ok {
		return canvasNotFound(c)
	}

	var view CanvasView
	_ = sess.Do(func(ctl *controller.Controller) error {
		view = viewOf(ctl)
		return nil
	})
	return response.Success(c, map[string]interface{}{
		"canvas": view,
	})
}

// Delete closes a canvas.
func (h *CanvasHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	if !h.store.Delete(id) {
		return canvasNotFound(c)
	}
	h.logger.Info("canvas deleted", "canvas", id)
	return response.Success(c, map[string]interface{}{
		"id": id,
	})
}

// SetBackground replaces the image object and reflows the canvas.
func (h *CanvasHandler) SetBackground(c echo.Context) error {
	sess, ok := h.lookup(c)
	if !ok {
		return canvasNotFound(c)
	}

	var req BackgroundRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}
	if !req.Rect.Empty() && !overlay.WithinBounds(req.Rect, h.maxDimension) {
		return h.tooLarge(c, "rect")
	}

	ctx := c.Request().Context()
	var (
		m   *mask.Mask
		err error
	)
	switch {
	case req.Mask != nil:
		m, err = mask.Decode(*req.Mask)
		if err != nil {
			h.logger.Warn("ignoring malformed mask", "canvas", sess.ID, "err", err)
			m = nil
		}
	case req.MaskKey != "":
		if h.masks == nil {
			return response.ErrorWithCode(c, http.StatusServiceUnavailable, response.CodeStorageUnavailable, "マスクの保存先が設定されていません")
		}
		m, err = h.masks.LoadMask(ctx, req.MaskKey)
		if err != nil {
			h.logger.Warn("failed to load mask", "canvas", sess.ID, "key", req.MaskKey, "err", err)
			return response.FromError(c, err)
		}
	}

	var result controller.ReflowResult
	_ = sess.Do(func(ctl *controller.Controller) error {
		result = ctl.SetBackground(ctx, req.Rect, m)
		return nil
	})
	return response.Success(c, map[string]interface{}{
		"layout": result,
	})
}

// PutItem adds or replaces a text item.
func (h *CanvasHandler) PutItem(c echo.Context) error {
	sess, ok := h.lookup(c)
	if !ok {
		return canvasNotFound(c)
	}

	var req ItemRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}

	var u controller.ItemUpdate
	err := sess.Do(func(ctl *controller.Controller) error {
		var err error
		u, err = ctl.UpsertItem(c.Param("itemId"), req.Rect, req.MaxWidth)
		return err
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, map[string]interface{}{
		"item": u,
	})
}

// DeleteItem removes a text item.
func (h *CanvasHandler) DeleteItem(c echo.Context) error {
	sess, ok := h.lookup(c)
	if !ok {
		return canvasNotFound(c)
	}

	id := c.Param("itemId")
	if err := sess.Do(func(ctl *controller.Controller) error {
		return ctl.RemoveItem(id)
	}); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, map[string]interface{}{
		"id": id,
	})
}

// Reflow runs global enforcement, honoring lock and a pending commit.
func (h *CanvasHandler) Reflow(c echo.Context) error {
	sess, ok := h.lookup(c)
	if !ok {
		return canvasNotFound(c)
	}
	return response.Success(c, map[string]interface{}{
		"layout": sess.Reflow(c.Request().Context()),
	})
}

// Realign runs global enforcement even while the layout is locked.
func (h *CanvasHandler) Realign(c echo.Context) error {
	sess, ok := h.lookup(c)
	if !ok {
		return canvasNotFound(c)
	}

	var result controller.ReflowResult
	_ = sess.Do(func(ctl *controller.Controller) error {
		result = ctl.Realign(c.Request().Context())
		return nil
	})
	return response.Success(c, map[string]interface{}{
		"layout": result,
	})
}

// Lock turns layout lock on or off.
func (h *CanvasHandler) Lock(c echo.Context) error {
	sess, ok := h.lookup(c)
	if !ok {
		return canvasNotFound(c)
	}

	var req LockRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}
	_ = sess.Do(func(ctl *controller.Controller) error {
		ctl.SetLocked(req.Locked)
		return nil
	})
	return response.Success(c, map[string]interface{}{
		"locked": req.Locked,
	})
}

// Overlay renders the canvas as a debug PNG. With an uploader configured the
// image is stored and its URL returned instead.
func (h *CanvasHandler) Overlay(c echo.Context) error {
	sess, ok := h.lookup(c)
	if !ok {
		return canvasNotFound(c)
	}

	data, err := h.renderer.PNG(sess.Snapshot())
	if err != nil {
		return response.FromError(c, err)
	}

	if h.uploader == nil {
		return c.Blob(http.StatusOK, "image/png", data)
	}

	url, err := h.uploader.UploadOverlay(c.Request().Context(), data)
	if err != nil {
		h.logger.Error("failed to upload overlay", "canvas", sess.ID, "err", err)
		return response.ErrorWithCode(c, http.StatusServiceUnavailable, response.CodeStorageUnavailable, "オーバーレイの保存に失敗しました")
	}
	return response.Success(c, map[string]interface{}{
		"url": url,
	})
}
