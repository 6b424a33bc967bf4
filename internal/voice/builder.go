package voice

import (
	"fmt"

	"shmc/internal/diag"
)

// Builder is a forward-only assembler for Program, mirroring
// patch.Builder's latched-error style: REPEAT_BEGIN/REPEAT_END nesting is
// tracked with a depth counter purely to catch mismatched blocks early: the
// compiler itself locates the matching END by scanning nesting depth, not
// by consulting this stack.
type Builder struct {
	instructions []VInstr
	repeatDepth  int
	err          error
	logger       *diag.Logger
}

// NewBuilder creates a Builder ready to assemble a score Program. logger
// may be nil.
func NewBuilder(logger *diag.Logger) *Builder {
	return &Builder{logger: logger}
}

// Err returns the first error latched during assembly, or nil.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
		b.logger.Logf(diag.ComponentVoice, diag.LevelError, "builder: %v", err)
	}
}

func (b *Builder) emit(ins VInstr) {
	if b.err != nil {
		return
	}
	if len(b.instructions) >= MaxInstructions {
		b.fail(fmt.Errorf("voice: instruction budget exceeded (max %d)", MaxInstructions))
		return
	}
	b.instructions = append(b.instructions, ins)
}

// Note emits a played note at pitch (MIDI number), duration index, and
// velocity index.
func (b *Builder) Note(pitch, dur, vel uint8) {
	b.emit(NewVInstr(VINote, pitch, dur, vel))
}

// Rest emits a silent gap of the given duration.
func (b *Builder) Rest(dur uint8) {
	b.emit(NewVInstr(VIRest, 0, dur, 0))
}

// Tie extends the most recently compiled note by dur beats, suppressing
// the gap that would otherwise separate it from the next event.
func (b *Builder) Tie(dur uint8) {
	b.emit(NewVInstr(VITie, 0, dur, 0))
}

// Glide emits a note that is compiled identically to Note: a plain
// NOTE_ON/NOTE_OFF pair. Continuous pitch glide is a property of the
// underlying Patch program (an OP_SYNC or portamento-style frequency
// ramp), not of the event stream (spec §4.4).
func (b *Builder) Glide(pitch, dur, vel uint8) {
	b.emit(NewVInstr(VIGlide, pitch, dur, vel))
}

// RepeatBegin opens a repeat block.
func (b *Builder) RepeatBegin() {
	if b.err != nil {
		return
	}
	if b.repeatDepth >= MaxRepeatDepth {
		b.fail(fmt.Errorf("voice: repeat nesting exceeds max depth %d", MaxRepeatDepth))
		return
	}
	b.repeatDepth++
	b.emit(NewVInstr(VIRepeatBegin, 0, 0, 0))
}

// RepeatEnd closes the innermost open repeat block, to be played count
// times (count must be >= 1).
func (b *Builder) RepeatEnd(count uint8) {
	if b.err != nil {
		return
	}
	if b.repeatDepth == 0 {
		b.fail(fmt.Errorf("voice: REPEAT_END with no matching REPEAT_BEGIN"))
		return
	}
	b.repeatDepth--
	b.emit(NewVInstr(VIRepeatEnd, 0, 0, count))
}

// Finish returns the assembled Program along with any latched error,
// including an unclosed-repeat-block error if RepeatBegin outnumbers
// RepeatEnd.
func (b *Builder) Finish() (*Program, error) {
	if b.err == nil && b.repeatDepth != 0 {
		b.fail(fmt.Errorf("voice: %d unclosed REPEAT block(s)", b.repeatDepth))
	}
	return &Program{Instructions: b.instructions}, b.err
}
