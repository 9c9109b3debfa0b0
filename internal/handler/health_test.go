package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyiku/slide-textguard-back/internal/geom"
	"github.com/kyiku/slide-textguard-back/internal/testutil"
)

func TestHealthHandler_Check(t *testing.T) {
	tests := []struct {
		name         string
		withStore    bool
		wantCanvases interface{}
	}{
		{
			name:         "正常系: ストアなし",
			withStore:    false,
			wantCanvases: nil,
		},
		{
			name:         "正常系: 開いているキャンバス数を返す",
			withStore:    true,
			wantCanvases: float64(1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := testutil.NewTestContext(http.MethodGet, "/health", nil)

			var h *HealthHandler
			if tt.withStore {
				store := newTestStore()
				store.Create(geom.R(0, 0, 100, 100), 0)
				h = NewHealthHandler(store)
			} else {
				h = NewHealthHandler(nil)
			}
			err := h.Check(tc.Context)

			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, tc.Recorder.Code)

			var resp map[string]interface{}
			err = json.Unmarshal(tc.Recorder.Body.Bytes(), &resp)
			require.NoError(t, err)

			assert.Equal(t, "ok", resp["status"])
			assert.Equal(t, tt.wantCanvases, resp["canvases"])
		})
	}
}
