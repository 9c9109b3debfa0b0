package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kyiku/slide-textguard-back/internal/response"
)

// MaskLister lists the stored silhouettes.
type MaskLister interface {
	ListMasks(ctx context.Context) ([]string, error)
}

// MaskHandler exposes the silhouettes available for SetBackground.
type MaskHandler struct {
	masks MaskLister
}

// NewMaskHandler creates a new MaskHandler.
func NewMaskHandler(masks MaskLister) *MaskHandler {
	return &MaskHandler{masks: masks}
}

// List returns the mask keys.
func (h *MaskHandler) List(c echo.Context) error {
	keys, err := h.masks.ListMasks(c.Request().Context())
	if err != nil {
		return response.ErrorWithCode(c, http.StatusServiceUnavailable, response.CodeStorageUnavailable, "マスク一覧の取得に失敗しました")
	}
	if keys == nil {
		keys = []string{}
	}
	return response.Success(c, map[string]interface{}{
		"keys": keys,
	})
}
