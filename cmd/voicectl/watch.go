package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/lukasbauer/habitvoice/internal/eventbus"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow habit data changes for the signed-in user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireToken(); err != nil {
			return err
		}
		ctx := cmd.Context()
		wsURL, err := newAPIClient(cfg.Server, cfg.Token).EventsURL()
		if err != nil {
			return err
		}

		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			return fmt.Errorf("connect events: %w", err)
		}
		defer conn.Close()

		go func() {
			<-ctx.Done()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		}()

		out := cmd.OutOrStdout()
		term := terminal{out: out}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return fmt.Errorf("read events: %w", err)
			}
			var ev eventbus.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				fmt.Fprintf(out, "unrecognized event: %s\n", data)
				continue
			}
			term.HabitDataChanged(ev.Action, ev.Habit)
		}
	},
}
