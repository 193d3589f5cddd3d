package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01

	keyMax = 0x2ff
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Daemon defaults
const (
	defaultStorePath      = "~/.config/quicktiles/settings.toml"
	defaultSocketPath     = "/tmp/quicktiles.sock"
	defaultWSListen       = "127.0.0.1:3002"
	defaultWSPath         = "/ws/state"
	defaultWakeLockDir    = "/sys/power"
	defaultLongPressMS    = 500  // key held at least this long is a long press (ms)
	defaultDayTemperature = 6500 // kelvin; equal to the "off" temperature

	eventQueueSize = 64
	taskQueueSize  = 256

	// Time an IPC or WS request waits for the daemon loop to answer
	requestTimeoutMS = 1000
)
