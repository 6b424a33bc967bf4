package patch

import (
	"fmt"

	"shmc/internal/diag"
)

// Builder is a forward-only inline assembler for Program. It allocates
// destination registers monotonically starting at RegFree, emits
// instructions strictly in call order, and returns the freshly allocated
// destination register from every opcode method so programs can be
// composed by threading return values into the next call's source
// operands — exactly the style original_source/layer0/include/patch_builder.h
// uses (pb_osc, pb_mul, pb_out chained directly).
//
// Overflowing the instruction or register budget latches an error on the
// Builder; it never panics. The partially built Program is still
// reachable via Finish, but Finish also returns the latched error so
// callers don't have to remember to check Err separately.
type Builder struct {
	instructions []Instruction
	nextReg      int
	err          error
	logger       *diag.Logger
}

// NewBuilder creates a Builder ready to assemble a Program. logger may be
// nil.
func NewBuilder(logger *diag.Logger) *Builder {
	return &Builder{nextReg: int(RegFree), logger: logger}
}

// Err returns the first overflow error latched during assembly, or nil.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
		b.logger.Logf(diag.ComponentPatch, diag.LevelError, "builder: %v", err)
	}
}

// reg allocates and returns the next free register, or 0 if the register
// budget is exhausted (the builder is latched into an error state at that
// point, so the bogus return value is never used to build a valid
// program).
func (b *Builder) reg() uint8 {
	if b.err != nil {
		return 0
	}
	if b.nextReg >= MaxRegisters {
		b.fail(fmt.Errorf("patch: register budget exceeded (max %d)", MaxRegisters))
		return 0
	}
	r := uint8(b.nextReg)
	b.nextReg++
	return r
}

func (b *Builder) emit(ins Instruction) {
	if b.err != nil {
		return
	}
	if len(b.instructions) >= MaxInstructions {
		b.fail(fmt.Errorf("patch: instruction budget exceeded (max %d)", MaxInstructions))
		return
	}
	b.instructions = append(b.instructions, ins)
}

func (b *Builder) op(o Opcode, a, src, srcB uint8, hi, lo uint16) uint8 {
	d := b.reg()
	b.emit(newInstruction(o, d, a, srcB, hi, lo))
	return d
}

// Finish returns the assembled Program along with any latched assembly
// error. The Program is returned even on error, matching pb_finish's
// "always return the program, flag it unusable" contract (spec §4.3,
// §7 category 1).
func (b *Builder) Finish() (*Program, error) {
	return &Program{
		Instructions: b.instructions,
		NumRegs:      b.nextReg,
		NumState:     len(b.instructions),
	}, b.err
}

// --- Constants ---

// Const emits a CONST that reads the modulation table at index modIdx.
func (b *Builder) Const(modIdx int) uint8 {
	return b.op(OpConst, 0, 0, 0, uint16(modIdx), 0)
}

// ConstF emits a CONST carrying an explicit Q8.8 signed fixed-point
// literal, decoded by the interpreter as float(int16(hi))/256.
func (b *Builder) ConstF(v float32) uint8 {
	q := int16(v * 256)
	return b.op(OpConst, 0, 0, 0, uint16(q), 1)
}

// --- Arithmetic ---

func (b *Builder) Add(a, c uint8) uint8 { return b.op(OpAdd, a, a, c, 0, 0) }
func (b *Builder) Sub(a, c uint8) uint8 { return b.op(OpSub, a, a, c, 0, 0) }
func (b *Builder) Mul(a, c uint8) uint8 { return b.op(OpMul, a, a, c, 0, 0) }
func (b *Builder) Div(a, c uint8) uint8 { return b.op(OpDiv, a, a, c, 0, 0) }
func (b *Builder) Neg(a uint8) uint8    { return b.op(OpNeg, a, a, 0, 0, 0) }
func (b *Builder) Abs(a uint8) uint8    { return b.op(OpAbs, a, a, 0, 0, 0) }

// --- Oscillators ---
// freqMul is a register holding a frequency multiplier; non-positive
// values fall back to 1.0 at runtime.

func (b *Builder) Osc(freqMul uint8) uint8    { return b.op(OpOsc, freqMul, freqMul, 0, 0, 0) }
func (b *Builder) Saw(freqMul uint8) uint8    { return b.op(OpSaw, freqMul, freqMul, 0, 0, 0) }
func (b *Builder) Square(freqMul uint8) uint8 { return b.op(OpSquare, freqMul, freqMul, 0, 0, 0) }
func (b *Builder) Tri(freqMul uint8) uint8    { return b.op(OpTri, freqMul, freqMul, 0, 0, 0) }
func (b *Builder) Phase(freqMul uint8) uint8  { return b.op(OpPhase, freqMul, freqMul, 0, 0, 0) }

// --- Modulation ---

// FM emits a frequency-modulated sine carrier: carrier freqMul times the
// note frequency, phase augmented each sample by modDepthIdx's depth
// times the modulator register.
func (b *Builder) FM(freqMul, modulator uint8, modDepthIdx int) uint8 {
	return b.op(OpFM, freqMul, freqMul, modulator, uint16(modDepthIdx), 0)
}

// PM emits a sine of (own phase + modulator register).
func (b *Builder) PM(freqMul, modulator uint8) uint8 {
	return b.op(OpPM, freqMul, freqMul, modulator, 0, 0)
}

// AM emits carrier * (1 + modDepthIdx's depth * modulator).
func (b *Builder) AM(carrier, modulator uint8, modDepthIdx int) uint8 {
	return b.op(OpAM, carrier, carrier, modulator, uint16(modDepthIdx), 0)
}

// Sync emits a hard-sync follower: leader is the sync source, followerMul
// is a frequency multiplier for the synced oscillator (non-positive falls
// back to 2.0 at runtime).
func (b *Builder) Sync(leader, followerMul uint8) uint8 {
	return b.op(OpSync, leader, leader, followerMul, 0, 0)
}

// --- Noise ---

func (b *Builder) Noise() uint8 { return b.op(OpNoise, 0, 0, 0, 0, 0) }

// LPNoise emits low-passed noise with cutoff taken from the cutoff table.
func (b *Builder) LPNoise(cutoffIdx int) uint8 {
	return b.op(OpLPNoise, 0, 0, 0, uint16(cutoffIdx), 0)
}

// RandStep emits sample-and-hold noise redrawn every period samples
// (default 100 when period <= 0).
func (b *Builder) RandStep(period int) uint8 {
	if period < 0 {
		period = 0
	}
	return b.op(OpRandStep, 0, 0, 0, uint16(period), 0)
}

// --- Nonlinearities ---

func (b *Builder) Tanh(a uint8) uint8 { return b.op(OpTanh, a, a, 0, 0, 0) }
func (b *Builder) Clip(a uint8) uint8 { return b.op(OpClip, a, a, 0, 0, 0) }
func (b *Builder) Fold(a uint8) uint8 { return b.op(OpFold, a, a, 0, 0, 0) }
func (b *Builder) Sign(a uint8) uint8 { return b.op(OpSign, a, a, 0, 0, 0) }

// --- Filters ---

func (b *Builder) LPF(a uint8, cutoffIdx int) uint8 {
	return b.op(OpLPF, a, a, 0, uint16(cutoffIdx), 0)
}
func (b *Builder) HPF(a uint8, cutoffIdx int) uint8 {
	return b.op(OpHPF, a, a, 0, uint16(cutoffIdx), 0)
}
func (b *Builder) BPF(a uint8, cutoffIdx, qIdx int) uint8 {
	return b.op(OpBPF, a, a, 0, uint16(cutoffIdx), uint16(qIdx))
}

// OnePole emits a one-pole filter whose coefficient is given directly, in
// [0, 1], rather than via the cutoff table (spec §4.2, §9 open question 2).
func (b *Builder) OnePole(a uint8, coeff float32) uint8 {
	if coeff < 0 {
		coeff = 0
	}
	if coeff > 1 {
		coeff = 1
	}
	hi := uint16(uint8(coeff*255)) << 8
	return b.op(OpOnePole, a, a, 0, hi, 0)
}

// --- Envelope & time ---

// ADSR emits a four-stage envelope with stage times taken from the
// envelope-time table (attack, decay, release) and the modulation table
// (sustain level).
func (b *Builder) ADSR(attackIdx, decayIdx, sustainIdx, releaseIdx int) uint8 {
	hi := uint16((attackIdx&0x3F)<<10 | (decayIdx&0x1F)<<5 | (sustainIdx & 0x1F))
	lo := uint16((releaseIdx & 0x1F) << 11)
	return b.op(OpADSR, 0, 0, 0, hi, lo)
}

// Ramp emits min(1, note_time/env_time[envTimeIdx]).
func (b *Builder) Ramp(envTimeIdx int) uint8 {
	return b.op(OpRamp, 0, 0, 0, uint16(envTimeIdx), 0)
}

// ExpDecay emits exp(-rate*note_time) where rate = mod_table[rateIdx]*20.
func (b *Builder) ExpDecay(rateIdx int) uint8 {
	return b.op(OpExpDecay, 0, 0, 0, uint16(rateIdx), 0)
}

// --- Utility ---

func (b *Builder) Min(a, c uint8) uint8 { return b.op(OpMin, a, a, c, 0, 0) }
func (b *Builder) Max(a, c uint8) uint8 { return b.op(OpMax, a, a, c, 0, 0) }

// MixN emits a weighted sum a*mod[wA] + c*mod[wB].
func (b *Builder) MixN(a, c uint8, wA, wB int) uint8 {
	return b.op(OpMixN, a, a, c, uint16(wA), uint16(wB))
}

// Out emits the output tap; the interpreter multiplies the read register
// by note velocity, advances note_time, and terminates the sample.
func (b *Builder) Out(src uint8) {
	b.emit(newInstruction(OpOut, 0, src, 0, 0, 0))
}
