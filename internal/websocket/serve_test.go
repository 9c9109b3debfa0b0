package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyiku/slide-textguard-back/internal/controller"
	"github.com/kyiku/slide-textguard-back/internal/geom"
	"github.com/kyiku/slide-textguard-back/internal/model"
	"github.com/kyiku/slide-textguard-back/internal/session"
	"github.com/kyiku/slide-textguard-back/internal/solver"
	"github.com/kyiku/slide-textguard-back/internal/testutil"
)

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	store := session.NewSessionStore(func(canvas *model.Canvas) *controller.Controller {
		settings := controller.DefaultSettings()
		settings.Search = solver.SearchOptions{StepPx: 4, MaxRadiusPx: 400}
		return controller.New(canvas, settings, nil, nil)
	})
	sess := store.Create(geom.R(0, 0, 1000, 1000), 0)
	require.NoError(t, sess.Do(func(ctl *controller.Controller) error {
		if _, err := ctl.UpsertItem("a", geom.R(10, 10, 100, 30), 0); err != nil {
			return err
		}
		_, err := ctl.UpsertItem("b", geom.R(10, 100, 100, 30), 0)
		return err
	}))
	return sess
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	t.Run("正常系: ドラッグ開始から移動", func(t *testing.T) {
		sess := newTestSession(t)

		out, err := Apply(ctx, sess, Event{Type: EventDragStart, ItemID: "a"})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, model.StateDragging, out[0].Item.State)

		out, err = Apply(ctx, sess, Event{Type: EventDragMove, ItemID: "a", X: 500, Y: 400})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, MessageItemUpdate, out[0].Type)
		assert.Equal(t, geom.R(500, 400, 100, 30), out[0].Item.Rect)
	})

	t.Run("正常系: リリース直後のリフローはスキップ", func(t *testing.T) {
		sess := newTestSession(t)
		_, err := Apply(ctx, sess, Event{Type: EventDragStart, ItemID: "a"})
		require.NoError(t, err)

		out, err := Apply(ctx, sess, Event{Type: EventRelease, ItemID: "a"})

		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, MessageItemUpdate, out[0].Type)
		assert.Equal(t, model.StateIdle, out[0].Item.State)
		assert.Equal(t, MessageLayoutUpdate, out[1].Type)
		assert.True(t, out[1].Layout.Skipped)
		assert.Equal(t, controller.SkipReasonCommit, out[1].Layout.Reason)

		// トークンは一度だけ使われる
		res := sess.Reflow(ctx)
		assert.False(t, res.Skipped)
	})

	t.Run("正常系: 編集終了で全体をリフロー", func(t *testing.T) {
		sess := newTestSession(t)
		_, err := Apply(ctx, sess, Event{Type: EventEditStart, ItemID: "b"})
		require.NoError(t, err)
		require.NoError(t, sess.Do(func(ctl *controller.Controller) error {
			_, err := ctl.UpsertItem("b", geom.R(10, 10, 100, 30), 0)
			return err
		}))

		out, err := Apply(ctx, sess, Event{Type: EventEditEnd, ItemID: "b"})

		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, model.StateIdle, out[0].Item.State)
		assert.False(t, out[1].Layout.Skipped)
		require.Len(t, out[1].Layout.Corrections, 1)
		assert.Equal(t, "b", out[1].Layout.Corrections[0].ID)
		assert.Equal(t, geom.Point{X: 10, Y: 42}, out[1].Layout.Corrections[0].TopLeft)
	})

	t.Run("正常系: 待機中のリサイズは確定してリフローをスキップ", func(t *testing.T) {
		sess := newTestSession(t)

		out, err := Apply(ctx, sess, Event{Type: EventResize, ItemID: "a", Width: 200, Height: 40})

		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, geom.R(10, 10, 200, 40), out[0].Item.Rect)
		assert.Equal(t, float64(200), out[0].Item.MaxWidth)
		assert.Equal(t, MessageLayoutUpdate, out[1].Type)
		assert.True(t, out[1].Layout.Skipped)
		assert.Equal(t, controller.SkipReasonCommit, out[1].Layout.Reason)
	})

	t.Run("正常系: 重なる待機中のリサイズはスナップ", func(t *testing.T) {
		sess := newTestSession(t)

		out, err := Apply(ctx, sess, Event{Type: EventResize, ItemID: "a", Width: 100, Height: 90})

		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.False(t, out[0].Item.Invalid)
		assert.False(t, out[0].Item.Rect.Overlaps(geom.R(10, 100, 100, 30)))
	})

	t.Run("正常系: ドラッグ中のリサイズは行だけ返す", func(t *testing.T) {
		sess := newTestSession(t)
		_, err := Apply(ctx, sess, Event{Type: EventDragStart, ItemID: "a"})
		require.NoError(t, err)

		out, err := Apply(ctx, sess, Event{Type: EventResize, ItemID: "a", Width: 200, Height: 40})

		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, model.StateDragging, out[0].Item.State)
		assert.Equal(t, float64(200), out[0].Item.MaxWidth)
	})

	t.Run("異常系: ドラッグ開始前の移動", func(t *testing.T) {
		sess := newTestSession(t)

		_, err := Apply(ctx, sess, Event{Type: EventDragMove, ItemID: "a", X: 1, Y: 1})

		assert.ErrorIs(t, err, model.ErrInvalidTransition)
	})

	t.Run("異常系: 存在しないアイテム", func(t *testing.T) {
		sess := newTestSession(t)

		_, err := Apply(ctx, sess, Event{Type: EventRelease, ItemID: "missing"})

		assert.ErrorIs(t, err, controller.ErrItemNotFound)
	})

	t.Run("異常系: 未知のイベント", func(t *testing.T) {
		sess := newTestSession(t)

		_, err := Apply(ctx, sess, Event{Type: "rotate", ItemID: "a"})

		assert.ErrorIs(t, err, ErrUnknownEvent)
	})
}

func decode(t *testing.T, raw []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestServe(t *testing.T) {
	t.Run("正常系: イベントを順に処理して接続終了で戻る", func(t *testing.T) {
		sess := newTestSession(t)
		conn := testutil.NewMockWebSocketConn()
		conn.ReadChan <- []byte(`{"type":"ping"}`)
		conn.ReadChan <- []byte(`{"type":"drag_start","item_id":"a"}`)
		conn.ReadChan <- []byte(`{"type":"drag_move","item_id":"a","x":300,"y":200}`)
		conn.ReadChan <- []byte(`{"type":"release","item_id":"a"}`)

		done := make(chan error, 1)
		go func() { done <- Serve(context.Background(), conn, sess) }()

		msgs := testutil.WaitForMessages(conn, 5, time.Second)
		require.Len(t, msgs, 5)
		_ = conn.Close()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Serve did not return")
		}

		assert.Equal(t, MessagePong, msgs[0]["type"])
		assert.Equal(t, MessageItemUpdate, msgs[1]["type"])
		assert.Equal(t, MessageItemUpdate, msgs[2]["type"])
		assert.Equal(t, MessageItemUpdate, msgs[3]["type"])
		assert.Equal(t, MessageLayoutUpdate, msgs[4]["type"])

		layout := msgs[4]["layout"].(map[string]interface{})
		assert.Equal(t, true, layout["skipped"])

		snap := sess.Snapshot()
		it, ok := snap.Item("a")
		require.True(t, ok)
		assert.Equal(t, geom.R(300, 200, 100, 30), it.Rect)
	})

	t.Run("異常系: 不正なイベントにはエラーを返して継続", func(t *testing.T) {
		sess := newTestSession(t)
		conn := testutil.NewMockWebSocketConn()
		conn.ReadChan <- []byte(`{"type":"rotate","item_id":"a"}`)
		conn.ReadChan <- []byte(`{"type":"release","item_id":"a"}`)
		conn.ReadChan <- []byte(`{"type":"drag_start","item_id":"missing"}`)

		done := make(chan error, 1)
		go func() { done <- Serve(context.Background(), conn, sess) }()

		require.NotNil(t, testutil.WaitForMessages(conn, 3, time.Second))
		_ = conn.Close()
		require.NoError(t, <-done)

		raw := conn.GetMessages()
		first, second, third := decode(t, raw[0]), decode(t, raw[1]), decode(t, raw[2])
		assert.Equal(t, MessageError, first["type"])
		assert.Equal(t, testutil.ErrCodeInvalidRequest, first["code"])
		assert.Equal(t, testutil.ErrCodeInvalidTransition, second["code"])
		assert.Equal(t, testutil.ErrCodeItemNotFound, third["code"])
	})

	t.Run("異常系: 書き込み失敗で終了", func(t *testing.T) {
		sess := newTestSession(t)
		conn := testutil.NewMockWebSocketConn()
		conn.WriteErr = errors.New("broken pipe")
		conn.ReadChan <- []byte(`{"type":"drag_start","item_id":"a"}`)

		err := Serve(context.Background(), conn, sess)

		assert.Error(t, err)
	})

	t.Run("正常系: キャンセル済みのcontextでは即終了", func(t *testing.T) {
		sess := newTestSession(t)
		conn := testutil.NewMockWebSocketConn()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.NoError(t, Serve(ctx, conn, sess))
	})
}
