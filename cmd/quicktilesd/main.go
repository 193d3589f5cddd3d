package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"quicktiles/internal/clock"
	"quicktiles/internal/flags"
	"quicktiles/internal/loop"
	"quicktiles/internal/panel"
	"quicktiles/internal/settings"
	"quicktiles/internal/tile"
	"quicktiles/internal/tiles"
)

const version = "0.3.0"

func printVersion() {
	fmt.Printf("quicktilesd v%s\n", version)
	fmt.Println("Quick settings tile daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  quicktilesd [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Hosts a panel of quick settings tiles (sound, caffeine, sync, ambient")
	fmt.Println("  display, live display, anti-flicker, reading mode) over a settings file.")
	fmt.Println("  Tiles are driven over a Unix socket (see tilectl) and by key bindings on")
	fmt.Println("  Linux input devices; tile state is published on a WebSocket stream.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file; flags below override its values")
	fmt.Println()
	fmt.Println("  -store string")
	fmt.Printf("        Settings file (default %q)\n", defaultStorePath)
	fmt.Println()
	fmt.Println("  -store-watch")
	fmt.Println("        Reload the settings file when it changes on disk (default true)")
	fmt.Println()
	fmt.Println("  -tiles string")
	fmt.Println("        Comma separated default tile list (e.g. \"sound,caffeine,sync\")")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultSocketPath)
	fmt.Println()
	fmt.Println("  -ws")
	fmt.Println("        Serve the WebSocket state stream (default true)")
	fmt.Println()
	fmt.Println("  -ws-listen string")
	fmt.Printf("        WebSocket listen address (default %q)\n", defaultWSListen)
	fmt.Println()
	fmt.Println("  -input-device string")
	fmt.Println("        Comma separated Linux input devices for key bindings")
	fmt.Println()
	fmt.Println("  -long-press-ms int")
	fmt.Printf("        Key hold time that counts as a long press in ms (default %d)\n", defaultLongPressMS)
	fmt.Println()
	fmt.Println("  -wakelock-name string")
	fmt.Println("        Kernel wake lock held while caffeine is on (default disabled)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start daemon with default settings")
	fmt.Println("  quicktilesd")
	fmt.Println()
	fmt.Println("  # Use a config file and debug logging")
	fmt.Println("  quicktilesd -config /etc/quicktiles.yaml -log-level debug")
	fmt.Println()
	fmt.Println("  # Tap caffeine from a shell")
	fmt.Println("  tilectl tap caffeine")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Key bindings need read access to the input devices (root or the 'input' group)")
	fmt.Println("  - The kernel wake lock needs write access to /sys/power/wake_lock")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath   = flag.String("config", "", "YAML config file")
		storePath    = flag.String("store", defaultStorePath, "Settings file")
		storeWatch   = flag.Bool("store-watch", true, "Reload the settings file when it changes on disk")
		tileList     = flag.String("tiles", "", "Comma separated default tile list")
		ipcSocket    = flag.String("ipc-socket", defaultSocketPath, "Unix domain socket path for IPC")
		wsEnabled    = flag.Bool("ws", true, "Serve the WebSocket state stream")
		wsListen     = flag.String("ws-listen", defaultWSListen, "WebSocket listen address")
		inputDevices = flag.String("input-device", "", "Comma separated Linux input devices")
		longPressMS  = flag.Int("long-press-ms", defaultLongPressMS, "Key hold time that counts as a long press (ms)")
		wakeLockName = flag.String("wakelock-name", "", "Kernel wake lock held while caffeine is on")
		logLevelStr  = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		_            = flag.Bool("version", false, "Print version and exit")
		_            = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "store":
			o.StorePath = storePath
		case "store-watch":
			o.StoreWatch = storeWatch
		case "tiles":
			list := splitList(*tileList)
			o.Tiles = &list
		case "ipc-socket":
			o.IPCSocketPath = ipcSocket
		case "ws":
			o.WSEnabled = wsEnabled
		case "ws-listen":
			o.WSListen = wsListen
		case "input-device":
			list := splitList(*inputDevices)
			o.InputDevices = &list
		case "long-press-ms":
			o.LongPressMS = longPressMS
		case "wakelock-name":
			o.WakeLockName = wakeLockName
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("quicktilesd failed", "error", err)
		os.Exit(1)
	}
}

// run wires the daemon together and blocks until a shutdown signal or a fatal error.
func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ============================================================================
	// Execution contexts
	// ============================================================================
	// mainLooper is drained by runDaemon; background runs store I/O.
	mainLooper := loop.NewLooper("main", taskQueueSize, logger)
	background := loop.NewLooper("background", taskQueueSize, logger)
	go background.Run(ctx)
	defer mainLooper.Close()

	// ============================================================================
	// Settings store
	// ============================================================================
	store, err := settings.OpenFileStore(cfg.Store.Path, background, logger)
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}
	if cfg.Store.Watch {
		go func() {
			if err := store.Watch(ctx); err != nil {
				logger.Warn("settings watcher stopped", "error", err)
			}
		}()
	}

	// ============================================================================
	// Panel + tiles
	// ============================================================================
	var broadcasts chan stateBroadcast
	if cfg.WS.Enabled {
		broadcasts = make(chan stateBroadcast, 256)
	}

	wakefulness := tile.NewWakefulness()
	p := panel.New(panel.Config{
		Store:        store,
		DefaultTiles: cfg.Panel.Tiles,
		AutoAdd:      cfg.Panel.AutoAdd,
		Wakefulness:  wakefulness,
		Main:         mainLooper,
		Background:   background,
		Sink:         wsSink{out: broadcasts, logger: logger},
		Logger:       logger,
	})

	var wakeLock tile.WakeLock
	if cfg.WakeLock.Name != "" {
		wakeLock = newSysfsWakeLock(cfg.WakeLock.Dir, cfg.WakeLock.Name, logger)
	}

	p.UseFactory(tiles.NewFactory(tiles.Deps{
		Store:        store,
		Main:         mainLooper,
		Background:   background,
		Clock:        clock.NewReal(mainLooper),
		Wakefulness:  wakefulness,
		WakeLock:     wakeLock,
		Capabilities: cfg.ToCapabilities(),
		Caffeine:     cfg.ToCaffeineOptions(),
		Host:         p,
		Logger:       logger,
	}))

	featureFlags := flags.New(store, background, nil, logger)
	featureFlags.Start()
	defer featureFlags.Stop()

	// ============================================================================
	// Daemon loop
	// ============================================================================
	requests := make(chan request, eventQueueSize)
	daemonDone := make(chan struct{})
	go func() {
		defer close(daemonDone)
		runDaemon(ctx, requests, mainLooper.Tasks(), &daemon{
			panel:  p,
			users:  store,
			flags:  featureFlags,
			logger: logger,
		})
	}()

	fatal := make(chan error, 3)

	// ============================================================================
	// IPC
	// ============================================================================
	go func() {
		if err := runIPCServer(ctx, cfg.IPC.SocketPath, requests, logger); err != nil {
			fatal <- fmt.Errorf("IPC server: %w", err)
		}
	}()

	// ============================================================================
	// WebSocket state stream
	// ============================================================================
	if cfg.WS.Enabled {
		srv := NewServer(logger, requests, HubConfig{})
		mux := http.NewServeMux()
		srv.Register(mux, cfg.WS.Path)
		go srv.Hub().Run(ctx)
		go RunBroadcaster(ctx, srv.Hub(), broadcasts, logger)

		httpServer := &http.Server{
			Addr:              cfg.WS.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("ws listening", "addr", cfg.WS.Listen, "path", cfg.WS.Path)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fatal <- fmt.Errorf("ws server: %w", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
	}

	// ============================================================================
	// Input devices
	// ============================================================================
	if len(cfg.Input.Devices) > 0 && len(cfg.Input.Bindings) > 0 {
		files, err := openInputDevices(cfg.Input.Devices)
		if err != nil {
			return fmt.Errorf("%w (tip: run as root or add user to 'input' group)", err)
		}
		defer func() {
			for _, f := range files {
				f.Close()
			}
		}()

		inputEvents := make(chan inputEvent, 64)
		readErr := make(chan error, len(files))
		startInputReaders(files, inputEvents, readErr)

		tracker := newKeyTracker(cfg.Input.Bindings, time.Duration(cfg.Input.LongPressMS)*time.Millisecond)
		go func() {
			if err := runInputLoop(ctx, inputEvents, readErr, tracker, requests, logger); err != nil {
				fatal <- err
			}
		}()
	}

	logger.Info("listening",
		"store", store.Path(),
		"ipc", cfg.IPC.SocketPath,
		"ws", cfg.WS.Enabled,
		"input_devices", len(cfg.Input.Devices),
		"tiles", strings.Join(cfg.Panel.Tiles, ","))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		err = nil
	case err = <-fatal:
		stop()
	}
	<-daemonDone
	return err
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
