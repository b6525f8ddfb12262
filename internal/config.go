package internal

import (
	"strconv"
	"sync/atomic"
)

// Process-wide output switches.
type mode uint32

const (
	modeQuiet mode = 1 << iota
	modeDebug
	modeVerbose
)

var modes atomic.Uint32

// Seeds the switches from the rawQuiet, rawDebug and rawVerbose linker
// variables. Unparseable values leave a switch off.
func init() {
	for m, raw := range map[mode]string{
		modeQuiet:   rawQuiet,
		modeDebug:   rawDebug,
		modeVerbose: rawVerbose,
	} {
		if on, err := strconv.ParseBool(raw); err == nil {
			set(m, on)
		}
	}
}

func set(m mode, on bool) {
	for {
		old := modes.Load()
		next := old &^ uint32(m)
		if on {
			next |= uint32(m)
		}
		if modes.CompareAndSwap(old, next) {
			return
		}
	}
}

func enabled(m mode) bool {
	return modes.Load()&uint32(m) != 0
}

// Suppresses everything below warnings.
func SetQuiet(on bool) { set(modeQuiet, on) }

// Reports whether quiet mode is on.
func IsQuiet() bool { return enabled(modeQuiet) }

// Turns debug logging on or off.
func SetDebug(on bool) { set(modeDebug, on) }

// Reports whether debug logging is on.
func IsDebug() bool { return enabled(modeDebug) }

// Turns build tool output on the terminal on or off.
func SetVerbose(on bool) { set(modeVerbose, on) }

// Reports whether verbose output is on.
func IsVerbose() bool { return enabled(modeVerbose) }
