package patch

import (
	"math"
	"testing"
)

const testSR = 44100

func sineADSRProgram(t *testing.T) *Program {
	t.Helper()
	b := NewBuilder(nil)
	osc := b.Osc(RegOne)
	env := b.ADSR(3, 10, 22, 18)
	b.Out(b.Mul(osc, env))
	prog, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	return prog
}

// TestStepIsBounded tests that every sample a Patch produces stays within
// [-1, 1] for a full second of rendering, across four of the reference
// demo patches.
func TestStepIsBounded(t *testing.T) {
	builders := map[string]func(*Builder){
		"sine_adsr":  func(b *Builder) { b.Out(b.Mul(b.Osc(RegOne), b.ADSR(3, 10, 22, 18))) },
		"saw_lpf":    func(b *Builder) { b.Out(b.Mul(b.LPF(b.Saw(RegOne), 30), b.ADSR(2, 8, 20, 15))) },
		"noise_bpf":  func(b *Builder) { b.Out(b.Mul(b.BPF(b.Noise(), 35, 25), b.ExpDecay(18))) },
		"square_hpf": func(b *Builder) { b.Out(b.Mul(b.HPF(b.Square(RegOne), 15), b.ADSR(0, 8, 18, 12))) },
	}

	for name, build := range builders {
		name, build := name, build
		t.Run(name, func(t *testing.T) {
			b := NewBuilder(nil)
			build(b)
			prog, err := b.Finish()
			if err != nil {
				t.Fatalf("Finish() error = %v", err)
			}
			p := NewPatch(prog)
			p.NoteOn(testSR, 60, 0.8)

			out := make([]float32, testSR)
			p.Step(out, len(out))
			for i, v := range out {
				if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
					t.Fatalf("sample %d is not finite: %v", i, v)
				}
				if v < -1.0001 || v > 1.0001 {
					t.Fatalf("sample %d = %v, out of [-1, 1]", i, v)
				}
			}
		})
	}
}

// TestSilenceBeforeNoteOn tests that a freshly constructed Patch produces
// only zeros until NoteOn is called.
func TestSilenceBeforeNoteOn(t *testing.T) {
	prog := sineADSRProgram(t)
	p := NewPatch(prog)

	out := make([]float32, 64)
	p.Step(out, len(out))
	for i, v := range out {
		if v != 0 {
			t.Fatalf("sample %d = %v before NoteOn, want 0", i, v)
		}
	}
}

// TestDeterminism tests that two Patches built from the same Program and
// driven identically produce bit-identical output.
func TestDeterminism(t *testing.T) {
	progA := sineADSRProgram(t)
	progB := sineADSRProgram(t)

	a := NewPatch(progA)
	b := NewPatch(progB)
	a.NoteOn(testSR, 64, 0.9)
	b.NoteOn(testSR, 64, 0.9)

	outA := make([]float32, 4096)
	outB := make([]float32, 4096)
	a.Step(outA, len(outA))
	b.Step(outB, len(outB))

	for i := range outA {
		if outA[i] != outB[i] {
			t.Fatalf("sample %d diverged: %v vs %v", i, outA[i], outB[i])
		}
	}
}

// TestAttackRampsTowardOne tests that the ADSR envelope's attack stage
// monotonically increases while the gate is held.
func TestAttackRampsTowardOne(t *testing.T) {
	prog := sineADSRProgram(t)
	p := NewPatch(prog)
	p.NoteOn(testSR, 60, 1.0)

	sb := stateBase(1) // ADSR is the second emitted instruction
	var prevLevel float32 = -1
	out := make([]float32, 1)
	for i := 0; i < 200; i++ {
		p.Step(out, 1)
		level := p.St.Slots[sb+1]
		if level < prevLevel-1e-6 {
			t.Fatalf("sample %d: ADSR level decreased during attack: %v then %v", i, prevLevel, level)
		}
		prevLevel = level
		if p.St.Slots[sb] != 0 {
			break // moved past attack
		}
	}
}

// TestReleaseDrivesLevelToZero tests that Release() forces every ADSR
// instruction into its release stage and that the envelope level
// eventually reaches zero.
func TestReleaseDrivesLevelToZero(t *testing.T) {
	prog := sineADSRProgram(t)
	p := NewPatch(prog)
	p.NoteOn(testSR, 60, 1.0)

	out := make([]float32, 8000)
	p.Step(out, len(out)) // let it reach sustain

	p.Release()
	sb := stateBase(1)
	if p.St.Slots[sb] != 3 {
		t.Fatalf("stage after Release() = %v, want 3 (release)", p.St.Slots[sb])
	}

	p.Step(out, len(out)) // well past any reasonable release time
	if level := p.St.Slots[sb+1]; level > 1e-3 {
		t.Fatalf("ADSR level after long release = %v, want ~0", level)
	}
}

// TestPhaseContinuityAcrossStepCalls tests that splitting a render into
// many small Step calls produces the same output as one large call, i.e.
// oscillator phase persists correctly across call boundaries.
func TestPhaseContinuityAcrossStepCalls(t *testing.T) {
	progOne := sineADSRProgram(t)
	progMany := sineADSRProgram(t)

	one := NewPatch(progOne)
	many := NewPatch(progMany)
	one.NoteOn(testSR, 69, 0.7)
	many.NoteOn(testSR, 69, 0.7)

	const total = 1000
	wantOut := make([]float32, total)
	one.Step(wantOut, total)

	gotOut := make([]float32, total)
	chunk := make([]float32, 7) // deliberately not a divisor of total
	for i := 0; i < total; i += len(chunk) {
		n := len(chunk)
		if i+n > total {
			n = total - i
		}
		many.Step(chunk[:n], n)
		copy(gotOut[i:i+n], chunk[:n])
	}

	for i := range wantOut {
		if wantOut[i] != gotOut[i] {
			t.Fatalf("sample %d diverged across call granularity: %v vs %v", i, wantOut[i], gotOut[i])
		}
	}
}

// TestRNGNeverLocksAtZero tests that the xorshift32 generator's reset
// seed keeps it productive (the recurrence has a fixed point at zero).
func TestRNGNeverLocksAtZero(t *testing.T) {
	var s uint32 = resetSeed
	for i := 0; i < 1000; i++ {
		v := rngFloat(&s)
		if s == 0 {
			t.Fatalf("RNG reached the zero fixed point after %d draws", i)
		}
		if v < -1 || v >= 1 {
			t.Errorf("rngFloat produced %v, out of [-1, 1)", v)
		}
	}
}

// TestFoldWaveStaysInRange tests that foldWave always returns a value in
// [-1, 1] regardless of how far out of range its input is.
func TestFoldWaveStaysInRange(t *testing.T) {
	for _, x := range []float32{0, 0.5, 1, -1, 1.5, -1.5, 10, -10, 100.25} {
		v := foldWave(x)
		if v < -1.0001 || v > 1.0001 {
			t.Errorf("foldWave(%v) = %v, out of [-1, 1]", x, v)
		}
	}
}

// TestFoldWaveMatchesReferenceValues tests foldWave against fixed points
// of original_source/layer0/src/patch_interp.c's fold_w, which a
// reflection-clipping implementation (identity within [-1, 1]) would not
// reproduce.
func TestFoldWaveMatchesReferenceValues(t *testing.T) {
	cases := []struct {
		x, want float32
	}{
		{0, -1},
		{1.5, 0},
		{1, 1},
		{-1, 1},
		{0.5, 0},
	}
	for _, c := range cases {
		if got := foldWave(c.x); math.Abs(float64(got-c.want)) > 1e-4 {
			t.Errorf("foldWave(%v) = %v, want %v", c.x, got, c.want)
		}
	}
}
