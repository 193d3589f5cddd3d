package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"quicktiles/internal/ipc"
	"quicktiles/internal/tile"
)

// ============================================================================
// tilectl - Command-line IPC Client
// ============================================================================
// Sends one event to quicktilesd over its Unix socket and prints the outcome.
//
// Usage:
//   tilectl tap caffeine
//   tilectl long-press sync
//   tilectl add livedisplay
//   tilectl state --json
// ============================================================================

const defaultSocketPath = "/tmp/quicktiles.sock"

// sendFunc delivers one event to the daemon; replaced in tests.
type sendFunc func(ctx context.Context, socketPath string, ev ipc.Event) (ipc.Response, error)

type options struct {
	socket  string
	timeout time.Duration
	json    bool
}

func main() {
	if err := newRootCmd(ipc.Send).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(send sendFunc) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "tilectl",
		Short:        "Drive the quicktilesd tile panel",
		Long:         `tilectl sends gestures and panel edits to a running quicktilesd over its IPC socket.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.socket, "socket", defaultSocketPath, "Unix domain socket path of the daemon")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", ipc.DefaultTimeout, "Round trip timeout")

	// Commands that take one tile spec.
	tileCmds := []struct {
		use   string
		short string
		event func(spec string) ipc.Event
	}{
		{"tap TILE", "Tap a tile (primary action)", func(s string) ipc.Event { return ipc.Tap{Tile: s} }},
		{"long-press TILE", "Long press a tile (opens its settings)", func(s string) ipc.Event { return ipc.LongPress{Tile: s} }},
		{"listen TILE", "Start listening for a tile's state", func(s string) ipc.Event { return ipc.SetListening{Tile: s, Listening: true} }},
		{"hide TILE", "Stop listening for a tile's state", func(s string) ipc.Event { return ipc.SetListening{Tile: s, Listening: false} }},
		{"add TILE", "Add a tile to the panel", func(s string) ipc.Event { return ipc.AddTile{Tile: s} }},
		{"remove TILE", "Remove a tile from the panel", func(s string) ipc.Event { return ipc.RemoveTile{Tile: s} }},
	}
	for _, tc := range tileCmds {
		event := tc.event
		root.AddCommand(&cobra.Command{
			Use:               tc.use,
			Short:             tc.short,
			Args:              cobra.ExactArgs(1),
			ValidArgsFunction: completeTiles(send, opts),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSimple(cmd, send, opts, event(args[0]))
			},
		})
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "sleep",
			Short: "Report that the device is going to sleep",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSimple(cmd, send, opts, ipc.GoingToSleep{})
			},
		},
		&cobra.Command{
			Use:   "display-init",
			Short: "Report that the display is initialized (auto-adds tiles)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSimple(cmd, send, opts, ipc.DisplayInitialized{})
			},
		},
		&cobra.Command{
			Use:   "switch-user USER",
			Short: "Switch the current user",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				user, err := strconv.Atoi(args[0])
				if err != nil || user < 0 {
					return fmt.Errorf("invalid user %q: must be a non-negative integer", args[0])
				}
				return runSimple(cmd, send, opts, ipc.SwitchUser{User: user})
			},
		},
		newStateCmd(send, opts),
	)

	return root
}

func newStateCmd(send sendFunc, opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the panel snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(cmd, send, opts, ipc.GetState{})
			if err != nil {
				return err
			}
			if opts.json || !isTerminal(cmd.OutOrStdout()) {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printState(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the raw JSON response (default when stdout is not a terminal)")
	return cmd
}

func roundTrip(cmd *cobra.Command, send sendFunc, opts *options, ev ipc.Event) (ipc.Response, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	return send(ctx, opts.socket, ev)
}

func runSimple(cmd *cobra.Command, send sendFunc, opts *options, ev ipc.Event) error {
	if _, err := roundTrip(cmd, send, opts, ev); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

func printState(w io.Writer, resp ipc.Response) {
	if resp.User != nil {
		fmt.Fprintf(w, "user %d\n", *resp.User)
	}
	for _, v := range resp.Tiles {
		line := fmt.Sprintf("%-16s %-12s %s", v.Spec, v.State, v.Label)
		if v.SecondaryLabel != "" {
			line += " (" + v.SecondaryLabel + ")"
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
	if len(resp.Flags) == 0 {
		return
	}
	names := make([]string, 0, len(resp.Flags))
	for name := range resp.Flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "flag %s=%t\n", name, resp.Flags[name])
	}
}

// isTerminal reports whether w is a terminal. Writers that are not files (tests,
// buffers) count as terminals so the table format is used.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return true
	}
	return term.IsTerminal(int(f.Fd()))
}

// completeTiles completes tile specs from the daemon's current panel, best fuzzy
// matches first. Completion stays silent when the daemon is not reachable.
func completeTiles(send sendFunc, opts *options) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		resp, err := roundTrip(cmd, send, opts, ipc.GetState{})
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return matchTiles(resp.Tiles, toComplete), cobra.ShellCompDirectiveNoFileComp
	}
}

func matchTiles(views []tile.View, pattern string) []string {
	specs := make([]string, len(views))
	for i, v := range views {
		specs[i] = v.Spec
	}
	if pattern == "" {
		return specs
	}
	matches := fuzzy.Find(pattern, specs)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Str
	}
	return out
}
