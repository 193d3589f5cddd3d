package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"quicktiles/internal/flags"
	"quicktiles/internal/ipc"
	"quicktiles/internal/panel"
	"quicktiles/internal/tile"
)

// ============================================================================
// Central Daemon Loop - the main (rendering) context
// ============================================================================
//
// Design rules enforced here:
//   - The panel and every tile machine are only touched from this goroutine.
//   - Work posted to the main Looper (mirror results, countdown ticks) is drained
//     here too, so events and posted tasks are serialized.
//   - Store reads and writes happen on the background Looper, never here.
//
// ============================================================================

// request is an event on its way to the daemon loop. reply may be nil when the sender
// does not wait for the outcome (input devices).
type request struct {
	ev    ipc.Event
	reply chan<- ipc.Response
}

// userStore is the part of the settings store the daemon drives directly.
type userStore interface {
	CurrentUser() int
	SwitchUser(user int) error
}

// daemon applies events to the panel. It is owned by runDaemon.
type daemon struct {
	panel  *panel.Panel
	users  userStore
	flags  *flags.FeatureFlags
	logger *slog.Logger
}

// runDaemon is the main daemon loop that:
//   - Starts the panel and stops it on exit
//   - Applies requests to the panel and answers them
//   - Runs tasks posted to the main context
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the requests channel is closed
func runDaemon(ctx context.Context, requests <-chan request, tasks <-chan func(), d *daemon) {
	if err := d.panel.Start(); err != nil {
		d.logger.Error("panel start failed", "error", err)
		return
	}
	defer d.panel.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping (context canceled)")
			return

		case req, ok := <-requests:
			if !ok {
				d.logger.Info("daemon stopping (requests channel closed)")
				return
			}
			resp := d.handle(req.ev)
			if resp.Status == ipc.StatusError {
				d.logger.Debug("event failed", "event", fmt.Sprintf("%T", req.ev), "error", resp.Error)
			}
			if req.reply != nil {
				select {
				case req.reply <- resp:
				default:
				}
			}

		case fn := <-tasks:
			fn()
		}
	}
}

// handle applies one event and builds its response.
func (d *daemon) handle(ev ipc.Event) ipc.Response {
	var err error

	switch e := ev.(type) {
	case ipc.Tap:
		err = d.panel.Gesture(e.Tile, tile.Tap)

	case ipc.LongPress:
		err = d.panel.Gesture(e.Tile, tile.LongPress)

	case ipc.SetListening:
		err = d.panel.SetListening(e.Tile, e.Listening)

	case ipc.AddTile:
		err = d.panel.AddTile(e.Tile)

	case ipc.RemoveTile:
		err = d.panel.RemoveTile(e.Tile)

	case ipc.GoingToSleep:
		d.panel.GoingToSleep()

	case ipc.SwitchUser:
		if d.users == nil {
			err = errors.New("user switching not supported")
			break
		}
		if err = d.users.SwitchUser(e.User); err == nil {
			d.logger.Info("switched user", "user", e.User)
		}

	case ipc.DisplayInitialized:
		d.panel.DisplayInitialized()

	case ipc.GetState:
		return d.snapshot()

	default:
		err = fmt.Errorf("unsupported event type: %T", ev)
	}

	if err != nil {
		return ipc.Failure(err)
	}
	return ipc.OK()
}

func (d *daemon) snapshot() ipc.Response {
	resp := ipc.OK()
	resp.Tiles = d.panel.Snapshot()
	if d.flags != nil {
		resp.Flags = d.flags.Snapshot()
	}
	if d.users != nil {
		user := d.users.CurrentUser()
		resp.User = &user
	}
	return resp
}

// submit hands ev to the daemon loop and waits for the response.
func submit(ctx context.Context, requests chan<- request, ev ipc.Event) (ipc.Response, error) {
	if _, has := ctx.Deadline(); !has {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeoutMS*time.Millisecond)
		defer cancel()
	}

	reply := make(chan ipc.Response, 1)
	select {
	case requests <- request{ev: ev, reply: reply}:
	case <-ctx.Done():
		return ipc.Response{}, fmt.Errorf("event queue: %w", ctx.Err())
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		return ipc.Response{}, fmt.Errorf("waiting for daemon: %w", ctx.Err())
	}
}
