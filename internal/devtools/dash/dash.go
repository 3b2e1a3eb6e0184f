// Package dash renders a live terminal dashboard over a running shell's
// WebSocket event stream.
package dash

import (
	"context"
	"fmt"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	wsmarshaller "github.com/arcfront/shellbus/internal/handler/marshaller/ws"
)

type Options struct {
	// Addr is the host:port of the running shell.
	Addr string
	// Replay is the history depth requested on connect.
	Replay int
}

// Run blocks until the user quits (q / Ctrl-C) or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	conn, err := dial(ctx, opts.Addr, opts.Replay)
	if err != nil {
		return err
	}
	defer conn.Close()

	frames := make(chan wsmarshaller.WSEvent, 64)
	go streamFrames(conn, frames)

	if err := ui.Init(); err != nil {
		return fmt.Errorf("dash: init terminal: %w", err)
	}
	defer ui.Close()

	header := widgets.NewParagraph()
	header.Title = "shellbus"

	events := widgets.NewList()
	events.Title = "Events (newest first)"

	counters := widgets.NewTable()
	counters.Title = "By type"
	counters.RowSeparator = false

	grid := ui.NewGrid()
	w, h := ui.TerminalDimensions()
	grid.SetRect(0, 0, w, h)
	grid.Set(
		ui.NewRow(0.12, header),
		ui.NewRow(0.58, events),
		ui.NewRow(0.30, counters),
	)

	st := newState(0)
	connected := true
	redraw := func() {
		header.Text = st.summary(opts.Addr, connected)
		events.Rows = st.rows()
		counters.Rows = st.counterRows()
		ui.Render(grid)
	}
	redraw()

	uiEvents := ui.PollEvents()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				redraw()
			}
		case f, ok := <-frames:
			if !ok {
				// Server went away; freeze the screen instead of exiting so
				// the operator can still read the tail.
				connected = false
				frames = nil
				redraw()
				continue
			}
			st.apply(f)
			redraw()
		case <-ticker.C:
			redraw()
		}
	}
}
