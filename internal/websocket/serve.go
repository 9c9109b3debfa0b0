package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kyiku/slide-textguard-back/internal/controller"
	"github.com/kyiku/slide-textguard-back/internal/geom"
	"github.com/kyiku/slide-textguard-back/internal/logging"
	"github.com/kyiku/slide-textguard-back/internal/response"
	"github.com/kyiku/slide-textguard-back/internal/session"
)

// Apply runs one event against a session and returns the messages to send back.
//
// A release commits the item and then asks for a reflow, which the commit's skip
// token turns into a no-op. A resize outside a drag or edit commits the same way.
// Ending an edit reflows the whole canvas.
func Apply(ctx context.Context, sess *session.Session, ev Event) ([]Message, error) {
	switch ev.Type {
	case EventRelease:
		u, err := sess.Release(ctx, ev.ItemID)
		if err != nil {
			return nil, err
		}
		return []Message{itemMessage(u), layoutMessage(sess.Reflow(ctx))}, nil

	case EventResize:
		u, committed, err := sess.Resize(ctx, ev.ItemID, ev.Width, ev.Height)
		if err != nil {
			return nil, err
		}
		if !committed {
			return []Message{itemMessage(u)}, nil
		}
		return []Message{itemMessage(u), layoutMessage(sess.Reflow(ctx))}, nil

	case EventEditEnd:
		var u controller.ItemUpdate
		err := sess.Do(func(ctl *controller.Controller) error {
			var err error
			u, err = ctl.EndEditing(ev.ItemID)
			return err
		})
		if err != nil {
			return nil, err
		}
		return []Message{itemMessage(u), layoutMessage(sess.Reflow(ctx))}, nil
	}

	var u controller.ItemUpdate
	err := sess.Do(func(ctl *controller.Controller) error {
		var err error
		switch ev.Type {
		case EventDragStart:
			if err = ctl.BeginDrag(ev.ItemID); err == nil {
				u, err = ctl.Item(ev.ItemID)
			}
		case EventDragMove:
			u, err = ctl.DragTo(ev.ItemID, geom.Point{X: ev.X, Y: ev.Y})
		case EventEditStart:
			if err = ctl.BeginEditing(ev.ItemID); err == nil {
				u, err = ctl.Item(ev.ItemID)
			}
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return []Message{itemMessage(u)}, nil
}

// Serve reads events from conn until it is closed or ctx is done.
// Bad events are answered with an error message and do not end the loop.
func Serve(ctx context.Context, conn Conn, sess *session.Session) error {
	logger := logging.FromContext(ctx).With("canvas", sess.ID)
	ping := NewPingHandler(conn)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read event: %w", err)
		}

		if ping.Handle(raw) {
			continue
		}

		ev, err := ParseEvent(raw)
		if err != nil {
			if werr := conn.WriteJSON(errorMessage(response.CodeInvalidRequest, err.Error())); werr != nil {
				return fmt.Errorf("failed to write error: %w", werr)
			}
			continue
		}

		out, err := Apply(ctx, sess, ev)
		if err != nil {
			_, code := response.Classify(err)
			msg := err.Error()
			if code == response.CodeInternalError {
				logger.Error("event failed", "type", ev.Type, "item", ev.ItemID, "err", err)
				msg = "サーバーエラーが発生しました"
			} else {
				logger.Debug("event rejected", "type", ev.Type, "item", ev.ItemID, "err", err)
			}
			out = []Message{errorMessage(code, msg)}
		}

		for _, m := range out {
			if err := conn.WriteJSON(m); err != nil {
				return fmt.Errorf("failed to write message: %w", err)
			}
		}
	}
}
