package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"quicktiles/internal/tile"
)

// frame is one message of the quicktilesd state stream.
type frame struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data"`
}

type snapshot struct {
	Tiles []tile.View     `json:"tiles"`
	Flags map[string]bool `json:"flags,omitempty"`
	User  *int            `json:"user,omitempty"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:3002/ws/state", "quicktilesd state stream URL")
		raw   = flag.Bool("raw", false, "Print frames as received")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	// Handle shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	// The daemon pings every 20s; answer and extend the deadline on each.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	// Tracks the last view per tile so only changed fields are printed.
	views := make(map[string]tile.View)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}

			switch messageType {
			case websocket.TextMessage:
				if *raw {
					fmt.Printf("%s\n", string(message))
					continue
				}
				handleFrame(os.Stdout, message, views)
			case websocket.BinaryMessage:
				fmt.Printf("[BINARY] %d bytes\n", len(message))
			}
		}
	}()

	// Wait for shutdown signal or connection close
	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// handleFrame prints one state stream frame.
func handleFrame(w io.Writer, message []byte, views map[string]tile.View) {
	var f frame
	if err := json.Unmarshal(message, &f); err != nil {
		fmt.Fprintf(w, "[TEXT] %s\n", string(message))
		return
	}

	switch f.Type {
	case "state_init":
		var s snapshot
		if err := json.Unmarshal(f.Data, &s); err != nil {
			fmt.Fprintf(w, "[INIT] malformed: %v\n", err)
			return
		}
		clear(views)
		if s.User != nil {
			fmt.Fprintf(w, "[INIT] user %d, %d tiles\n", *s.User, len(s.Tiles))
		} else {
			fmt.Fprintf(w, "[INIT] %d tiles\n", len(s.Tiles))
		}
		for _, v := range s.Tiles {
			views[v.Spec] = v
			fmt.Fprintf(w, "  %s\n", describe(v))
		}

	case "tile_changed":
		var v tile.View
		if err := json.Unmarshal(f.Data, &v); err != nil {
			fmt.Fprintf(w, "[TILE] malformed: %v\n", err)
			return
		}
		if prev, ok := views[v.Spec]; ok && prev == v {
			return
		}
		views[v.Spec] = v
		fmt.Fprintf(w, "[TILE] %s\n", describe(v))

	case "tile_removed":
		var d struct {
			Spec string `json:"spec"`
		}
		_ = json.Unmarshal(f.Data, &d)
		delete(views, d.Spec)
		fmt.Fprintf(w, "[REMOVED] %s\n", d.Spec)

	case "launch_intent":
		var d struct {
			Spec   string `json:"spec"`
			Intent string `json:"intent"`
		}
		_ = json.Unmarshal(f.Data, &d)
		fmt.Fprintf(w, "[INTENT] %s -> %s\n", d.Spec, d.Intent)

	default:
		var pretty any
		if err := json.Unmarshal(message, &pretty); err == nil {
			b, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Fprintf(w, "[%s]\n%s\n\n", f.Type, string(b))
		}
	}
}

func describe(v tile.View) string {
	s := fmt.Sprintf("%s: %s %q", v.Spec, v.State, v.Label)
	if v.SecondaryLabel != "" {
		s += fmt.Sprintf(" (%s)", v.SecondaryLabel)
	}
	return s
}
