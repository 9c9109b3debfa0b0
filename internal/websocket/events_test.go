package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    Event
		wantErr error
	}{
		{
			name:    "正常系: drag_move",
			message: `{"type":"drag_move","item_id":"title","x":12.5,"y":40}`,
			want:    Event{Type: EventDragMove, ItemID: "title", X: 12.5, Y: 40},
		},
		{
			name:    "正常系: resize",
			message: `{"type":"resize","item_id":"title","width":300,"height":48}`,
			want:    Event{Type: EventResize, ItemID: "title", Width: 300, Height: 48},
		},
		{
			name:    "正常系: pingはitem_id不要",
			message: `{"type":"ping"}`,
			want:    Event{Type: EventPing},
		},
		{
			name:    "異常系: item_idなし",
			message: `{"type":"release"}`,
			wantErr: ErrMissingItem,
		},
		{
			name:    "異常系: 未知のイベント",
			message: `{"type":"rotate","item_id":"title"}`,
			wantErr: ErrUnknownEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvent([]byte(tt.message))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("異常系: 不正なJSON", func(t *testing.T) {
		_, err := ParseEvent([]byte(`{"type":`))

		assert.Error(t, err)
	})
}
