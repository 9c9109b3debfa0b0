package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kyiku/slide-textguard-back/internal/controller"
	"github.com/kyiku/slide-textguard-back/internal/mask"
	"github.com/kyiku/slide-textguard-back/internal/model"
	"github.com/kyiku/slide-textguard-back/internal/overlay"
	"github.com/kyiku/slide-textguard-back/internal/scene"
	"github.com/kyiku/slide-textguard-back/internal/solver"
	"github.com/kyiku/slide-textguard-back/internal/storage"
)

// Classify maps a domain error to an HTTP status and error code.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, controller.ErrItemNotFound):
		return http.StatusNotFound, CodeItemNotFound
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict, CodeInvalidTransition
	case errors.Is(err, controller.ErrInvalidSize),
		errors.Is(err, mask.ErrInvalidDimensions),
		errors.Is(err, mask.ErrSizeMismatch),
		errors.Is(err, scene.ErrInvalidScene),
		errors.Is(err, solver.ErrInvalidSearch),
		errors.Is(err, overlay.ErrTooLarge),
		errors.Is(err, overlay.ErrEmptyCanvas),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusBadRequest, CodeInvalidRequest
	}
	return http.StatusInternalServerError, CodeInternalError
}

// FromError sends the error response matching err.
func FromError(c echo.Context, err error) error {
	status, code := Classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "サーバーエラーが発生しました"
	}
	return ErrorWithCode(c, status, code, message)
}
