package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kyiku/slide-textguard-back/internal/geom"
)

func TestPushOut(t *testing.T) {
	allowed := geom.R(0, 0, 1000, 1000)
	image := geom.R(50, 50, 200, 200)

	tests := []struct {
		name     string
		box      geom.Rect
		obstacle geom.Rect
		allowed  geom.Rect
		policy   PushOutPolicy
		want     geom.Point
		wantSide Side
	}{
		{
			name:     "正常系: 右と下が同距離なら右",
			box:      geom.R(150, 150, 100, 40),
			obstacle: image,
			allowed:  allowed,
			policy:   DefaultPushOutPolicy,
			want:     geom.Point{X: 250, Y: 150},
			wantSide: SideRight,
		},
		{
			name:     "正常系: 優先方向を下に変更",
			box:      geom.R(150, 150, 100, 40),
			obstacle: image,
			allowed:  allowed,
			policy:   PushOutPolicy{Prefer: SideBelow},
			want:     geom.Point{X: 150, Y: 250},
			wantSide: SideBelow,
		},
		{
			name:     "正常系: 上が最も近い",
			box:      geom.R(100, 60, 50, 20),
			obstacle: image,
			allowed:  allowed,
			policy:   DefaultPushOutPolicy,
			want:     geom.Point{X: 100, Y: 30},
			wantSide: SideAbove,
		},
		{
			name:     "正常系: 左が最も近い",
			box:      geom.R(60, 150, 30, 20),
			obstacle: image,
			allowed:  allowed,
			policy:   DefaultPushOutPolicy,
			want:     geom.Point{X: 20, Y: 150},
			wantSide: SideLeft,
		},
		{
			name:     "正常系: 許可領域で塞がれた側は選ばない",
			box:      geom.R(10, 150, 100, 40),
			obstacle: geom.R(0, 50, 120, 300),
			allowed:  geom.R(0, 0, 1000, 1000),
			policy:   DefaultPushOutPolicy,
			want:     geom.Point{X: 120, Y: 150},
			wantSide: SideRight,
		},
		{
			name:     "正常系: 許可領域なしでもクランプしない",
			box:      geom.R(60, 60, 10, 10),
			obstacle: image,
			allowed:  geom.Rect{},
			policy:   DefaultPushOutPolicy,
			want:     geom.Point{X: 40, Y: 60},
			wantSide: SideLeft,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, side := PushOut(tt.box, tt.obstacle, tt.allowed, tt.policy)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantSide, side)
		})
	}
}

func TestSide_String(t *testing.T) {
	assert.Equal(t, "right", SideRight.String())
	assert.Equal(t, "above", SideAbove.String())
	assert.Equal(t, "unknown", Side(42).String())
}
