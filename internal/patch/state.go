package patch

// resetSeed is the xorshift32 seed every State starts from after Reset.
// It must never be zero: the xorshift32 recurrence has a fixed point at
// zero and would output silence forever.
const resetSeed uint32 = 0xDEADBEEF

// State is the per-voice mutable cell a Patch owns exclusively: the
// register scratch file, the persistent per-instruction DSP memory, note
// context, and the RNG seed. Registers are overwritten every sample;
// Slots, NoteTime, and RNG are the only things that persist across
// Step calls (Patch VM invariant (b), spec §3).
type State struct {
	Regs  [MaxRegisters]float32
	Slots [MaxStateSlots]float32

	NoteFreq float32
	NoteVel  float32
	NoteTime float32

	SampleRate float32
	dt         float32

	RNG uint32
}

// reset blanks a State to post-note-off silence and reseeds the RNG to
// the canonical constant. Registers, state slots, and note context are
// all zeroed; only the RNG seed is nonzero afterward.
func (s *State) reset() {
	*s = State{RNG: resetSeed}
}
