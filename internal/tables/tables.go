// Package tables holds the constant quantization tables shared by every
// Patch and Voice instruction that parameterizes itself by table index
// rather than by raw float immediate: pitch, filter cutoff, envelope
// timing, modulation depth/weight, note duration, and note velocity.
//
// All five spec-mandated tables (pitch, cutoff, envelope time, modulation,
// duration) plus the velocity table supplemented from
// original_source/layer1/include/voice.h are populated once, lazily, by
// Init. Init is idempotent and safe to call from every entry point that
// needs the tables (patch.NewPatch, Patch.NoteOn, and direct callers);
// a sync.Once backs it so racing callers never repopulate or observe a
// half-built table.
package tables

import (
	"math"
	"sync"

	"shmc/internal/diag"
)

const (
	// PitchSize is the MIDI note range covered by the pitch table.
	PitchSize = 128
	// CutoffSize is the number of quantized filter cutoff steps.
	CutoffSize = 64
	// EnvSize is the number of quantized envelope-time steps.
	EnvSize = 32
	// ModSize is the number of modulation-table steps.
	ModSize = 32
	// DurationSize is the number of note-duration steps.
	DurationSize = 7
	// VelocitySize is the number of note-velocity steps.
	VelocitySize = 8
)

var (
	once sync.Once

	pitch  [PitchSize]float32
	cutoff [CutoffSize]float32
	env    [EnvSize]float32
)

// mod is compile-time constant: 32 linearly spaced values in [0, 1].
var mod = func() [ModSize]float32 {
	var t [ModSize]float32
	for i := range t {
		t[i] = float32(i) / float32(ModSize-1)
	}
	return t
}()

// duration is compile-time constant: {1/64 .. 1} beats.
var duration = [DurationSize]float32{
	1.0 / 64, 1.0 / 32, 1.0 / 16, 1.0 / 8, 1.0 / 4, 1.0 / 2, 1,
}

// velocity is compile-time constant: 8 linear steps, pppp..ffff.
var velocity = [VelocitySize]float32{
	0.125, 0.250, 0.375, 0.500, 0.625, 0.750, 0.875, 1.000,
}

// Init populates the pitch, cutoff, and envelope tables. It is idempotent:
// the first call does the work, every later call is a no-op. Safe to call
// from any entry point; must be called before the first note-on.
func Init(logger *diag.Logger) {
	once.Do(func() {
		for i := 0; i < PitchSize; i++ {
			pitch[i] = float32(440 * math.Pow(2, float64(i-69)/12))
		}
		for i := 0; i < CutoffSize; i++ {
			cutoff[i] = float32(20 * math.Pow(1000, float64(i)/63))
		}
		for i := 0; i < EnvSize; i++ {
			env[i] = float32(0.001 * math.Pow(4000, float64(i)/31))
		}
		logger.Logf(diag.ComponentTables, diag.LevelInfo,
			"populated pitch(%d) cutoff(%d) env(%d) mod(%d) duration(%d) velocity(%d) tables",
			PitchSize, CutoffSize, EnvSize, ModSize, DurationSize, VelocitySize)
	})
}

// clampInt clamps i to [0, n-1].
func clampInt(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Pitch converts a MIDI note number to frequency in Hz, clamping to
// [0, 127].
func Pitch(midi int) float32 {
	return pitch[clampInt(midi, PitchSize)]
}

// Cutoff looks up a quantized filter cutoff in Hz, clamping out-of-range
// indices to the nearest entry. Callers that use a sentinel default for
// out-of-range indices check HasCutoff first.
func Cutoff(i int) float32 {
	return cutoff[clampInt(i, CutoffSize)]
}

// HasCutoff reports whether i indexes a real cutoff-table entry (as
// opposed to triggering an opcode-defined default coefficient).
func HasCutoff(i int) bool {
	return i >= 0 && i < CutoffSize
}

// EnvTime looks up a quantized envelope stage time in seconds.
func EnvTime(i int) float32 {
	return env[clampInt(i, EnvSize)]
}

// HasEnvTime reports whether i indexes a real envelope-time entry.
func HasEnvTime(i int) bool {
	return i >= 0 && i < EnvSize
}

// Mod looks up a modulation depth/weight scalar in [0, 1].
func Mod(i int) float32 {
	return mod[clampInt(i, ModSize)]
}

// HasMod reports whether i indexes a real modulation-table entry.
func HasMod(i int) bool {
	return i >= 0 && i < ModSize
}

// Duration looks up a note duration in beats, defaulting to a quarter
// note (index 4) when i is out of range.
func Duration(i int) float32 {
	if i < 0 || i >= DurationSize {
		return duration[4]
	}
	return duration[i]
}

// Velocity looks up a note velocity in [0, 1], defaulting to 0.75 when i
// is out of range (mezzo-forte, table step 5).
func Velocity(i int) float32 {
	if i < 0 || i >= VelocitySize {
		return 0.75
	}
	return velocity[i]
}
