// Package diag provides construction-time diagnostic logging for the
// Patch and Voice builders/compilers.
//
// Unlike a GUI debugger's logger, this one is deliberately synchronous and
// unbuffered by goroutines: it is only ever consulted while assembling a
// PatchProgram, compiling a VoiceProgram, or populating the constant
// tables — never from inside Patch.Step or Voice.RenderBlock, which must
// stay allocation-free and total. A channel-fed background writer would
// add exactly the kind of per-call overhead and non-determinism the audio
// path cannot afford.
package diag

import (
	"fmt"
	"sync"
)

// Logger is a small leveled, component-scoped logger. The zero value is
// usable but discards everything (MinLevel defaults to LevelNone).
type Logger struct {
	mu        sync.Mutex
	entries   []Entry
	maxKeep   int
	enabled   map[Component]bool
	minLevel  Level
}

// NewLogger creates a Logger that keeps up to maxKeep entries (minimum 16)
// and reports at minLevel and above. All components are enabled by default.
func NewLogger(maxKeep int, minLevel Level) *Logger {
	if maxKeep < 16 {
		maxKeep = 16
	}
	return &Logger{
		maxKeep:  maxKeep,
		enabled:  make(map[Component]bool),
		minLevel: minLevel,
	}
}

// SetComponentEnabled toggles logging for a single component.
func (l *Logger) SetComponentEnabled(c Component, on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.enabled == nil {
		l.enabled = make(map[Component]bool)
	}
	l.enabled[c] = on
}

func (l *Logger) componentEnabled(c Component) bool {
	on, seen := l.enabled[c]
	return !seen || on
}

// Log records an entry if the component is enabled and the level passes
// the logger's filter.
func (l *Logger) Log(c Component, lvl Level, msg string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if lvl > l.minLevel || !l.componentEnabled(c) {
		return
	}
	l.entries = append(l.entries, Entry{Component: c, Level: lvl, Message: msg})
	if len(l.entries) > l.maxKeep {
		l.entries = l.entries[len(l.entries)-l.maxKeep:]
	}
}

// Logf is Log with fmt.Sprintf-style formatting.
func (l *Logger) Logf(c Component, lvl Level, format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.Log(c, lvl, fmt.Sprintf(format, args...))
}

// Entries returns a copy of the retained log entries, oldest first.
func (l *Logger) Entries() []Entry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
