package response

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyiku/slide-textguard-back/internal/controller"
	"github.com/kyiku/slide-textguard-back/internal/mask"
	"github.com/kyiku/slide-textguard-back/internal/model"
	"github.com/kyiku/slide-textguard-back/internal/overlay"
	"github.com/kyiku/slide-textguard-back/internal/scene"
	"github.com/kyiku/slide-textguard-back/internal/solver"
	"github.com/kyiku/slide-textguard-back/internal/storage"
	"github.com/kyiku/slide-textguard-back/internal/testutil"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "行が存在しない", err: fmt.Errorf("%w: a", controller.ErrItemNotFound), wantStatus: http.StatusNotFound, wantCode: CodeItemNotFound},
		{name: "不正な状態遷移", err: fmt.Errorf("%w: idle -> idle", model.ErrInvalidTransition), wantStatus: http.StatusConflict, wantCode: CodeInvalidTransition},
		{name: "不正なサイズ", err: controller.ErrInvalidSize, wantStatus: http.StatusBadRequest, wantCode: CodeInvalidRequest},
		{name: "マスクのサイズ不一致", err: mask.ErrSizeMismatch, wantStatus: http.StatusBadRequest, wantCode: CodeInvalidRequest},
		{name: "存在しないマスク", err: fmt.Errorf("failed to get mask: %w", storage.ErrNotFound), wantStatus: http.StatusBadRequest, wantCode: CodeInvalidRequest},
		{name: "不正なシーン", err: fmt.Errorf("%w: query is required", scene.ErrInvalidScene), wantStatus: http.StatusBadRequest, wantCode: CodeInvalidRequest},
		{name: "探索コストが上限を超える", err: fmt.Errorf("%w: too many rings", solver.ErrInvalidSearch), wantStatus: http.StatusBadRequest, wantCode: CodeInvalidRequest},
		{name: "描画サイズが上限を超える", err: fmt.Errorf("%w: 40000x40000", overlay.ErrTooLarge), wantStatus: http.StatusBadRequest, wantCode: CodeInvalidRequest},
		{name: "その他のエラー", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := Classify(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestFromError(t *testing.T) {
	t.Run("正常系: ドメインエラーはメッセージをそのまま返す", func(t *testing.T) {
		tc := testutil.NewTestContext(http.MethodGet, "/", nil)

		err := FromError(tc.Context, fmt.Errorf("%w: title", controller.ErrItemNotFound))

		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, tc.Recorder.Code)
		body := tc.GetResponseBody()
		assert.Equal(t, CodeItemNotFound, body["code"])
		assert.Equal(t, "item not found: title", body["message"])
	})

	t.Run("異常系: 内部エラーは詳細を隠す", func(t *testing.T) {
		tc := testutil.NewTestContext(http.MethodGet, "/", nil)

		require.NoError(t, FromError(tc.Context, errors.New("secret detail")))

		assert.Equal(t, http.StatusInternalServerError, tc.Recorder.Code)
		assert.NotContains(t, tc.Recorder.Body.String(), "secret detail")
	})
}
