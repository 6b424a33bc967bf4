package patch

import (
	"math"

	"shmc/internal/tables"
)

const twoPi = float32(2 * math.Pi)

// Patch binds an immutable Program to a mutable State and is the unit the
// render loop drives one sample at a time. Many Patches may share one
// Program; each owns its own State.
type Patch struct {
	Prog *Program
	St   State
}

// NewPatch creates a silent, un-triggered Patch bound to prog.
func NewPatch(prog *Program) *Patch {
	tables.Init(nil)
	p := &Patch{Prog: prog}
	p.St.reset()
	return p
}

// NoteOn resets the Patch's State and binds a new note: sampleRate in Hz,
// midi note number, and vel in [0, 1]. It is the only place NoteFreq,
// NoteVel, and the reserved registers are (re)established — Step never
// touches them except RegTime.
func (p *Patch) NoteOn(sampleRate float32, midi int, vel float32) {
	tables.Init(nil)
	p.St.reset()
	p.St.SampleRate = sampleRate
	if sampleRate > 0 {
		p.St.dt = 1 / sampleRate
	}
	p.St.NoteFreq = tables.Pitch(midi)
	p.St.NoteVel = vel
	p.St.NoteTime = 0
	p.St.Regs[RegFreq] = p.St.NoteFreq
	p.St.Regs[RegVel] = vel
	p.St.Regs[RegTime] = 0
	p.St.Regs[RegOne] = 1
}

// Reset silences the Patch without starting a new note: registers, state
// slots, and note context all return to zero and the RNG is reseeded.
func (p *Patch) Reset() {
	p.St.reset()
}

// Release forces every ADSR instruction in the program into its release
// stage, as if the note's NOTE_OFF event had fired right now. The
// renderer drives this (spec §4.5): it is exposed here as a capability on
// the Patch rather than direct state-slot access, since only the
// interpreter knows which instructions are OP_ADSR and where their state
// lives.
func (p *Patch) Release() {
	for i, ins := range p.Prog.Instructions {
		if ins.Op() != OpADSR {
			continue
		}
		sb := stateBase(i)
		p.St.Slots[sb+0] = 3 // stage = release
		p.St.Slots[sb+2] = 0 // timer reset
	}
}

// Step renders n samples into out, which must have length >= n.
func (p *Patch) Step(out []float32, n int) {
	for i := 0; i < n; i++ {
		p.St.Regs[RegTime] = p.St.NoteTime
		out[i] = p.exec1()
	}
}

// exec1 runs the program once, producing one sample of output.
func (p *Patch) exec1() float32 {
	st := &p.St
	dt := st.dt
	regs := &st.Regs

	for i, ins := range p.Prog.Instructions {
		op := ins.Op()
		dst := ins.Dst()
		a := ins.SrcA()
		b := ins.SrcB()
		hi := ins.ImmHi()
		lo := ins.ImmLo()
		sb := stateBase(i)

		var out float32

		switch op {
		case OpConst:
			out = decodeConst(hi, lo)

		case OpAdd:
			out = regs[a] + regs[b]
		case OpSub:
			out = regs[a] - regs[b]
		case OpMul:
			out = regs[a] * regs[b]
		case OpDiv:
			if regs[b] == 0 {
				out = 0
			} else {
				out = regs[a] / regs[b]
			}
		case OpNeg:
			out = -regs[a]
		case OpAbs:
			out = float32(math.Abs(float64(regs[a])))

		case OpOsc:
			freq := st.NoteFreq * fallbackMul(regs[a])
			phase := oscTick(&st.Slots[sb], freq, dt)
			out = fsin(phase)
		case OpSaw:
			freq := st.NoteFreq * fallbackMul(regs[a])
			phase := oscTick(&st.Slots[sb], freq, dt)
			out = sawWave(phase)
		case OpSquare:
			freq := st.NoteFreq * fallbackMul(regs[a])
			phase := oscTick(&st.Slots[sb], freq, dt)
			out = sqrWave(phase)
		case OpTri:
			freq := st.NoteFreq * fallbackMul(regs[a])
			phase := oscTick(&st.Slots[sb], freq, dt)
			out = triWave(phase)
		case OpPhase:
			freq := st.NoteFreq * fallbackMul(regs[a])
			out = oscTick(&st.Slots[sb], freq, dt)

		case OpFM:
			freq := st.NoteFreq * fallbackMul(regs[a])
			depth := tables.Mod(int(hi))
			phase := wrapPhase(st.Slots[sb] + twoPi*freq*dt + depth*regs[b])
			st.Slots[sb] = phase
			out = fsin(phase)
		case OpPM:
			freq := st.NoteFreq * fallbackMul(regs[a])
			base := oscTick(&st.Slots[sb], freq, dt)
			out = fsin(wrapPhase(base + regs[b]))
		case OpAM:
			depth := tables.Mod(int(hi))
			out = regs[a] * (1 + depth*regs[b])
		case OpSync:
			leader := regs[a]
			crossed := st.Slots[sb] <= 0 && leader > 0
			st.Slots[sb] = leader
			followerMul := regs[b]
			if followerMul <= 0 {
				followerMul = 2
			}
			if crossed {
				st.Slots[sb+1] = 0
			}
			freq := st.NoteFreq * followerMul
			phase := oscTick(&st.Slots[sb+1], freq, dt)
			out = fsin(phase)

		case OpNoise:
			out = rngFloat(&st.RNG)
		case OpLPNoise:
			c := cutoffCoeff(int(hi), dt, lpNoiseSentinelCoeff)
			raw := rngFloat(&st.RNG)
			st.Slots[sb] += c * (raw - st.Slots[sb])
			out = st.Slots[sb]
		case OpRandStep:
			period := hi
			if period == 0 {
				period = 100
			}
			counter := st.Slots[sb+1]
			if counter <= 0 {
				st.Slots[sb] = rngFloat(&st.RNG)
				st.Slots[sb+1] = float32(period) - 1
			} else {
				st.Slots[sb+1] = counter - 1
			}
			out = st.Slots[sb]

		case OpTanh:
			out = float32(math.Tanh(float64(regs[a])))
		case OpClip:
			out = clip(regs[a], -1, 1)
		case OpFold:
			out = foldWave(regs[a])
		case OpSign:
			switch {
			case regs[a] > 0:
				out = 1
			case regs[a] < 0:
				out = -1
			default:
				out = 0
			}

		case OpLPF:
			c := cutoffCoeff(int(hi), dt, filterSentinelCoeff)
			st.Slots[sb] += c * (regs[a] - st.Slots[sb])
			out = st.Slots[sb]
		case OpHPF:
			c := cutoffCoeff(int(hi), dt, filterSentinelCoeff)
			st.Slots[sb] += c * (regs[a] - st.Slots[sb])
			out = regs[a] - st.Slots[sb]
		case OpBPF:
			c := cutoffCoeff(int(hi), dt, filterSentinelCoeff)
			q := float32(0.5)
			if lo < tables.ModSize {
				q = tables.Mod(int(lo)) + 0.1
			}
			lv := st.Slots[sb]
			bv := st.Slots[sb+1]
			hv := regs[a] - lv - q*bv
			bv += c * hv
			lv += c * bv
			st.Slots[sb] = lv
			st.Slots[sb+1] = bv
			out = bv
		case OpOnePole:
			coeff := float32(uint8(hi>>8)) / 255
			st.Slots[sb] += coeff * (regs[a] - st.Slots[sb])
			out = st.Slots[sb]

		case OpADSR:
			attackIdx := (hi >> 10) & 0x3F
			decayIdx := (hi >> 5) & 0x1F
			sustainIdx := hi & 0x1F
			releaseIdx := (lo >> 11) & 0x1F
			attackT := tables.EnvTime(int(attackIdx))
			decayT := tables.EnvTime(int(decayIdx))
			sustainLevel := tables.Mod(int(sustainIdx))
			releaseT := tables.EnvTime(int(releaseIdx))
			out = adsrTick(st.Slots[sb:sb+4], attackT, decayT, sustainLevel, releaseT, dt)
		case OpRamp:
			envT := float32(rampSentinelSeconds)
			if tables.HasEnvTime(int(hi)) {
				envT = tables.EnvTime(int(hi))
			}
			out = clip(st.NoteTime/envT, 0, 1)
		case OpExpDecay:
			rate := float32(expDecaySentinelRate)
			if tables.HasMod(int(hi)) {
				rate = tables.Mod(int(hi)) * 20
			}
			out = float32(math.Exp(float64(-rate * st.NoteTime)))

		case OpMin:
			out = minF(regs[a], regs[b])
		case OpMax:
			out = maxF(regs[a], regs[b])
		case OpMixN:
			wA := tables.Mod(int(hi))
			wB := tables.Mod(int(lo))
			out = regs[a]*wA + regs[b]*wB

		case OpOut:
			result := regs[a] * st.NoteVel
			st.NoteTime += dt
			return result

		default:
			out = 0
		}

		regs[dst] = out
	}

	// No OUT was executed: fall back to register 0, matching
	// original_source/layer0/src/patch_interp.c's exec1 fallback.
	st.NoteTime += dt
	return regs[0] * st.NoteVel
}

func fallbackMul(v float32) float32 {
	if v <= 0 {
		return 1
	}
	return v
}

func clip(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// decodeConst interprets a CONST instruction's immediates. lo == 1 always
// means a signed Q8.8 fixed-point literal; lo == 0 means a modulation
// table index when hi is in range, else also a Q8.8 literal.
func decodeConst(hi, lo uint16) float32 {
	if lo == 1 {
		return q88(hi)
	}
	if hi < tables.ModSize {
		return tables.Mod(int(hi))
	}
	return q88(hi)
}

func q88(hi uint16) float32 {
	return float32(int16(hi)) / 256
}

// rngFloat advances an xorshift32 generator in place and returns a value
// uniformly distributed in [-1, 1).
func rngFloat(s *uint32) float32 {
	x := *s
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	*s = x
	return float32(int32(x)) * (1.0 / 2147483648.0)
}

// wrapPhase reduces a phase into [0, 2*pi).
func wrapPhase(p float32) float32 {
	p = float32(math.Mod(float64(p), float64(twoPi)))
	if p < 0 {
		p += twoPi
	}
	return p
}

// oscTick advances the phase accumulator at *phase by one sample at freq
// Hz and returns the phase value from before this sample's advance.
func oscTick(phase *float32, freq, dt float32) float32 {
	p := *phase
	*phase = wrapPhase(p + twoPi*freq*dt)
	return p
}

// fsin is a polynomial sine approximation: the argument is reduced to
// [-pi, pi], folded into [-pi/2, pi/2] by symmetry, and evaluated with a
// seventh-order odd polynomial whose error stays below 2e-4.
func fsin(x float32) float32 {
	x -= twoPi * float32(math.Floor(float64(x/twoPi+0.5)))
	const halfPi = float32(math.Pi / 2)
	if x > halfPi {
		x = float32(math.Pi) - x
	} else if x < -halfPi {
		x = -float32(math.Pi) - x
	}
	s := x * x
	return x * (1 - s*(1.0/6-s*(1.0/120-s/5040)))
}

func sawWave(phase float32) float32 {
	return 2*(phase/twoPi) - 1
}

func sqrWave(phase float32) float32 {
	if phase < float32(math.Pi) {
		return 1
	}
	return -1
}

func triWave(phase float32) float32 {
	t := phase / twoPi // 0..1
	if t < 0.5 {
		return 4*t - 1
	}
	return 3 - 4*t
}

// foldWave wraps x into a triangle-shaped [-1, 1] fold, simulating an
// analog wavefolder: it is periodic in x, not a clamp, so values well
// outside [-1, 1] keep folding back and forth rather than saturating.
func foldWave(x float32) float32 {
	x = x*0.5 + 0.5
	x -= float32(math.Floor(float64(x)))
	return float32(math.Abs(float64(x*2-1)))*2 - 1
}

// onePoleCoeff converts a cutoff frequency into a one-pole smoothing
// coefficient for the given sample period.
func onePoleCoeff(cutoff, dt float32) float32 {
	omega := twoPi * cutoff * dt
	return omega / (1 + omega)
}

// Sentinel values opcodes fall back to when their cutoff/envelope/mod
// table index is out of range, matching original_source/layer0/src/
// patch_interp.c's exec1. These are deliberately not table entries: an
// out-of-range index means "use the filter's/envelope's untuned
// default," not "clamp to the table's extreme."
const (
	filterSentinelCoeff  = 0.1
	lpNoiseSentinelCoeff = 0.05
	rampSentinelSeconds  = 0.1
	expDecaySentinelRate = 2.0
)

// cutoffCoeff looks up a one-pole coefficient from the cutoff table at
// idx, or returns sentinel when idx does not index a real table entry.
func cutoffCoeff(idx int, dt, sentinel float32) float32 {
	if !tables.HasCutoff(idx) {
		return sentinel
	}
	return onePoleCoeff(tables.Cutoff(idx), dt)
}

// adsrTick advances a four-stage envelope whose state lives in slot[0]
// (stage: 0=attack,1=decay,2=sustain,3=release) and slot[1] (current
// level), slot[2] (stage timer). Release always ramps down from the
// table's sustain level, recomputed every tick, regardless of the
// level the envelope was actually at when release was triggered — a
// staccato note cut off mid-attack or mid-decay jumps to the sustain
// level's release curve rather than ramping from wherever it was.
func adsrTick(slot []float32, attackT, decayT, sustainLevel, releaseT, dt float32) float32 {
	stage := slot[0]
	level := slot[1]
	timer := slot[2]

	switch int(stage) {
	case 0: // attack
		if attackT <= 0 {
			level = 1
		} else {
			level = clip(timer/attackT, 0, 1)
		}
		timer += dt
		if timer >= attackT {
			stage = 1
			timer = 0
		}
	case 1: // decay
		if decayT <= 0 {
			level = sustainLevel
		} else {
			frac := clip(timer/decayT, 0, 1)
			level = 1 - frac*(1-sustainLevel)
		}
		timer += dt
		if timer >= decayT {
			stage = 2
			timer = 0
			level = sustainLevel
		}
	case 2: // sustain
		level = sustainLevel
	default: // release
		if releaseT <= 0 {
			level = 0
		} else {
			frac := clip(timer/releaseT, 0, 1)
			level = sustainLevel * (1 - frac)
		}
		timer += dt
	}

	slot[0] = stage
	slot[1] = level
	slot[2] = timer
	return level
}
