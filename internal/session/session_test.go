package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyiku/slide-textguard-back/internal/controller"
	"github.com/kyiku/slide-textguard-back/internal/geom"
	"github.com/kyiku/slide-textguard-back/internal/model"
)

func testBuilder(canvas *model.Canvas) *controller.Controller {
	return controller.New(canvas, controller.DefaultSettings(), nil, nil)
}

func TestSessionStore_Create(t *testing.T) {
	store := NewSessionStore(testBuilder)

	sess := store.Create(geom.R(0, 0, 1080, 1350), 24)

	assert.NotEmpty(t, sess.ID)
	assert.False(t, sess.CreatedAt.IsZero())
	snap := sess.Snapshot()
	assert.Equal(t, sess.ID, snap.ID)
	assert.Equal(t, geom.R(24, 24, 1032, 1302), snap.Allowed())
	assert.Equal(t, 1, store.Count())
}

func TestSessionStore_Get(t *testing.T) {
	tests := []struct {
		name        string
		createFirst bool
		wantFound   bool
	}{
		{name: "正常系: 存在するセッション", createFirst: true, wantFound: true},
		{name: "異常系: 存在しないセッション", createFirst: false, wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewSessionStore(testBuilder)

			id := "non-existent-session"
			if tt.createFirst {
				id = store.Create(geom.R(0, 0, 100, 100), 0).ID
			}

			sess, found := store.Get(id)

			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.NotNil(t, sess)
			} else {
				assert.Nil(t, sess)
			}
		})
	}
}

func TestSessionStore_Delete(t *testing.T) {
	store := NewSessionStore(testBuilder)
	id := store.Create(geom.R(0, 0, 100, 100), 0).ID

	// 削除前は存在する
	_, found := store.Get(id)
	assert.True(t, found)

	assert.True(t, store.Delete(id))
	assert.False(t, store.Delete(id))

	// 削除後は存在しない
	_, found = store.Get(id)
	assert.False(t, found)
}

func TestSessionStore_Expiry(t *testing.T) {
	tests := []struct {
		name      string
		expiry    time.Duration
		waitTime  time.Duration
		wantFound bool
	}{
		{name: "正常系: 有効期限内", expiry: 100 * time.Millisecond, waitTime: 10 * time.Millisecond, wantFound: true},
		{name: "異常系: 有効期限切れ", expiry: 50 * time.Millisecond, waitTime: 100 * time.Millisecond, wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewSessionStoreWithExpiry(testBuilder, tt.expiry)
			id := store.Create(geom.R(0, 0, 100, 100), 0).ID

			time.Sleep(tt.waitTime)

			_, found := store.Get(id)
			assert.Equal(t, tt.wantFound, found)
		})
	}
}

func TestSessionStore_Cleanup(t *testing.T) {
	store := NewSessionStoreWithExpiry(testBuilder, 20*time.Millisecond)
	store.Create(geom.R(0, 0, 100, 100), 0)
	store.Create(geom.R(0, 0, 100, 100), 0)

	assert.Equal(t, 0, store.Cleanup())
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 2, store.Cleanup())
	assert.Equal(t, 0, store.Count())
}

func TestSession_ReleaseThenReflow(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(testBuilder)
	sess := store.Create(geom.R(0, 0, 1000, 1000), 0)

	require.NoError(t, sess.Do(func(ctl *controller.Controller) error {
		if _, err := ctl.UpsertItem("a", geom.R(10, 10, 100, 30), 0); err != nil {
			return err
		}
		return ctl.BeginDrag("a")
	}))

	_, err := sess.Release(ctx, "a")
	require.NoError(t, err)

	// 最初のリフローはコミット直後なのでスキップ、次は実行される
	res := sess.Reflow(ctx)
	assert.True(t, res.Skipped)
	assert.Equal(t, controller.SkipReasonCommit, res.Reason)

	res = sess.Reflow(ctx)
	assert.False(t, res.Skipped)
}

func TestSession_Resize(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(testBuilder)
	sess := store.Create(geom.R(0, 0, 1000, 1000), 0)
	require.NoError(t, sess.Do(func(ctl *controller.Controller) error {
		_, err := ctl.UpsertItem("a", geom.R(10, 10, 100, 30), 0)
		return err
	}))

	t.Run("正常系: ドラッグ中のリサイズはトークンを残さない", func(t *testing.T) {
		require.NoError(t, sess.Do(func(ctl *controller.Controller) error {
			return ctl.BeginDrag("a")
		}))

		_, committed, err := sess.Resize(ctx, "a", 120, 30)

		require.NoError(t, err)
		assert.False(t, committed)
		assert.False(t, sess.Reflow(ctx).Skipped)
	})

	t.Run("正常系: 待機中のリサイズは次のリフローを一度スキップ", func(t *testing.T) {
		_, err := sess.Release(ctx, "a")
		require.NoError(t, err)
		require.True(t, sess.Reflow(ctx).Skipped)

		u, committed, err := sess.Resize(ctx, "a", 150, 30)

		require.NoError(t, err)
		assert.True(t, committed)
		assert.Equal(t, float64(150), u.MaxWidth)
		res := sess.Reflow(ctx)
		assert.True(t, res.Skipped)
		assert.Equal(t, controller.SkipReasonCommit, res.Reason)
		assert.False(t, sess.Reflow(ctx).Skipped)
	})

	t.Run("異常系: 不正なサイズ", func(t *testing.T) {
		_, committed, err := sess.Resize(ctx, "a", -1, 30)

		assert.ErrorIs(t, err, controller.ErrInvalidSize)
		assert.False(t, committed)
		assert.False(t, sess.Reflow(ctx).Skipped)
	})
}

func TestSession_ReleaseError(t *testing.T) {
	store := NewSessionStore(testBuilder)
	sess := store.Create(geom.R(0, 0, 1000, 1000), 0)

	_, err := sess.Release(context.Background(), "missing")
	assert.ErrorIs(t, err, controller.ErrItemNotFound)

	// 失敗したリリースはトークンを残さない
	assert.False(t, sess.Reflow(context.Background()).Skipped)
}

func TestSessionStore_Concurrent(t *testing.T) {
	store := NewSessionStore(testBuilder)
	sess := store.Create(geom.R(0, 0, 1000, 1000), 0)
	var wg sync.WaitGroup

	// 同じセッションへ並行して行を追加
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a'+i%26)) + string(rune('a'+i/26))
			_ = sess.Do(func(ctl *controller.Controller) error {
				_, err := ctl.UpsertItem(id, geom.R(float64(i*10), 0, 10, 10), 0)
				return err
			})
			_, found := store.Get(sess.ID)
			assert.True(t, found)
		}(i)
	}
	wg.Wait()

	assert.Len(t, sess.Snapshot().Items, 50)
}
