// Command shmcdemo renders the reference Patch programs and worked Voice
// scores from original_source/layer0/tests and original_source/layer1/tests
// to WAV files, as a smoke test and a listening demo of the engine.
package main

import (
	"fmt"
	"os"

	"shmc/internal/diag"
	"shmc/internal/patch"
	"shmc/internal/tables"
	"shmc/internal/voice"
	"shmc/internal/wavio"
)

const sampleRate = 44100

func main() {
	logger := diag.NewLogger(256, diag.LevelInfo)
	tables.Init(logger)

	if err := renderPatchDemos(logger); err != nil {
		fmt.Fprintln(os.Stderr, "patch demos:", err)
		os.Exit(1)
	}
	if err := renderVoiceDemos(logger); err != nil {
		fmt.Fprintln(os.Stderr, "voice demos:", err)
		os.Exit(1)
	}
}

// --- Patch demo programs (original_source/layer0/tests/test_layer0.c) ---

func buildSineADSR(b *patch.Builder) {
	osc := b.Osc(patch.RegOne)
	env := b.ADSR(3, 10, 22, 18)
	b.Out(b.Mul(osc, env))
}

func buildSawLPF(b *patch.Builder) {
	saw := b.Saw(patch.RegOne)
	filtered := b.LPF(saw, 30)
	env := b.ADSR(2, 8, 20, 15)
	b.Out(b.Mul(filtered, env))
}

func buildFM2Op(b *patch.Builder) {
	modMul := b.ConstF(2.0)
	mod := b.Osc(modMul)
	carrier := b.FM(patch.RegOne, mod, 20)
	env := b.ADSR(2, 12, 18, 14)
	b.Out(b.Mul(carrier, env))
}

func buildFMFold(b *patch.Builder) {
	modMul := b.ConstF(3.0)
	mod := b.Osc(modMul)
	carrier := b.FM(patch.RegOne, mod, 25)
	folded := b.Fold(carrier)
	filtered := b.LPF(folded, 38)
	env := b.ADSR(1, 8, 16, 12)
	b.Out(b.Mul(filtered, env))
}

func buildNoiseBPF(b *patch.Builder) {
	n := b.Noise()
	bp := b.BPF(n, 35, 25)
	env := b.ExpDecay(18)
	b.Out(b.Mul(bp, env))
}

func buildPad(b *patch.Builder) {
	o1 := b.Osc(patch.RegOne)
	detuneMul := b.ConstF(1.008)
	o2 := b.Osc(detuneMul)
	mix := b.MixN(o1, o2, 15, 15)
	lfoMul := b.ConstF(0.03)
	lfo := b.Osc(lfoMul)
	am := b.AM(mix, lfo, 8)
	filtered := b.LPF(am, 40)
	env := b.ADSR(15, 5, 28, 20)
	b.Out(b.Mul(filtered, env))
}

func buildSquareHPF(b *patch.Builder) {
	sq := b.Square(patch.RegOne)
	hp := b.HPF(sq, 15)
	env := b.ADSR(0, 8, 18, 12)
	b.Out(b.Mul(hp, env))
}

func buildTriTanh(b *patch.Builder) {
	tri := b.Tri(patch.RegOne)
	four := b.ConstF(4.0)
	driven := b.Mul(tri, four)
	folded := b.Tanh(driven)
	env := b.ADSR(2, 10, 20, 15)
	b.Out(b.Mul(folded, env))
}

// --- Instrument patches (original_source/layer1/tests/test_layer1.c) ---

func buildPiano(b *patch.Builder) {
	modMul := b.ConstF(2.0)
	mod := b.Osc(modMul)
	carrier := b.FM(patch.RegOne, mod, 15)
	env := b.ADSR(0, 14, 8, 10)
	b.Out(b.Mul(carrier, env))
}

func buildBass(b *patch.Builder) {
	saw := b.Saw(patch.RegOne)
	filtered := b.LPF(saw, 28)
	env := b.ADSR(0, 8, 20, 8)
	b.Out(b.Mul(filtered, env))
}

func buildLead(b *patch.Builder) {
	tri := b.Tri(patch.RegOne)
	three := b.ConstF(3.0)
	driven := b.Mul(tri, three)
	folded := b.Tanh(driven)
	env := b.ADSR(1, 10, 22, 12)
	b.Out(b.Mul(folded, env))
}

func buildInstrumentPad(b *patch.Builder) {
	o1 := b.Osc(patch.RegOne)
	detuneMul := b.ConstF(1.008)
	o2 := b.Osc(detuneMul)
	mix := b.MixN(o1, o2, 16, 16)
	filtered := b.LPF(mix, 42)
	env := b.ADSR(14, 4, 28, 20)
	b.Out(b.Mul(filtered, env))
}

func assemble(logger *diag.Logger, build func(*patch.Builder)) (*patch.Program, error) {
	b := patch.NewBuilder(logger)
	build(b)
	return b.Finish()
}

func renderPatchDemos(logger *diag.Logger) error {
	demos := []struct {
		name  string
		build func(*patch.Builder)
	}{
		{"sine_adsr", buildSineADSR},
		{"saw_lpf", buildSawLPF},
		{"fm_2op", buildFM2Op},
		{"fm_fold", buildFMFold},
		{"noise_bpf", buildNoiseBPF},
		{"pad", buildPad},
		{"square_hpf", buildSquareHPF},
		{"tri_tanh", buildTriTanh},
	}

	for _, d := range demos {
		prog, err := assemble(logger, d.build)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		p := patch.NewPatch(prog)
		p.NoteOn(sampleRate, 60, tables.Velocity(4))

		samples := make([]float32, sampleRate) // 1 second
		block := make([]float32, patch.DefaultBlockSize)
		for i := 0; i < len(samples); i += len(block) {
			n := len(block)
			if i+n > len(samples) {
				n = len(samples) - i
			}
			p.Step(block[:n], n)
			copy(samples[i:i+n], block[:n])
		}

		if err := writeWAV("demo_"+d.name+".wav", samples); err != nil {
			return err
		}
	}
	return nil
}

// --- Voice demos (original_source/layer1/tests/test_layer1.c) ---

func buildScale(b *voice.Builder) {
	for _, p := range []uint8{60, 62, 64, 65, 67, 69, 71, 72} {
		b.Note(p, voice.Dur1_4, voice.VelMF)
	}
}

func buildAlberti(b *voice.Builder) {
	b.RepeatBegin()
	for _, p := range []uint8{48, 52, 55, 52} {
		b.Note(p, voice.Dur1_8, voice.VelMP)
	}
	b.RepeatEnd(4)
}

func buildRestTie(b *voice.Builder) {
	b.Note(60, voice.Dur1_4, voice.VelF)
	b.Tie(voice.Dur1_8)
	b.Rest(voice.Dur1_8)
	b.Note(64, voice.Dur1_4, voice.VelMF)
	b.Rest(voice.Dur1_4)
	b.Note(67, voice.Dur1_2, voice.VelP)
}

func buildNestedRepeat(b *voice.Builder) {
	b.RepeatBegin()
	b.Note(60, voice.Dur1_4, voice.VelMP)
	b.RepeatBegin()
	b.Note(64, voice.Dur1_8, voice.VelMP)
	b.Note(62, voice.Dur1_8, voice.VelMP)
	b.RepeatEnd(2)
	b.Note(60, voice.Dur1_4, voice.VelMF)
	b.RepeatEnd(3)
}

func buildGlideLine(b *voice.Builder) {
	for p := uint8(55); p <= 67; p++ {
		b.Glide(p, voice.Dur1_16, voice.VelMF)
	}
	b.Note(67, voice.Dur1_2, voice.VelMF)
}

func buildTwinkleOpening(b *voice.Builder) {
	melody := []uint8{60, 60, 67, 67, 69, 69, 67}
	durs := []uint8{voice.Dur1_4, voice.Dur1_4, voice.Dur1_4, voice.Dur1_4, voice.Dur1_4, voice.Dur1_4, voice.Dur1_2}
	for i, p := range melody {
		b.Note(p, durs[i], voice.VelMF)
	}
}

func renderVoiceDemos(logger *diag.Logger) error {
	scenarios := []struct {
		name  string
		bpm   float32
		instr func(*patch.Builder)
		score func(*voice.Builder)
	}{
		{"scale", 120, buildPiano, buildScale},
		{"repeat", 120, buildBass, buildAlberti},
		{"rest_tie", 100, buildLead, buildRestTie},
		{"nested_repeat", 130, buildPiano, buildNestedRepeat},
		{"glide", 100, buildLead, buildGlideLine},
		{"melody", 110, buildInstrumentPad, buildTwinkleOpening},
	}

	for _, sc := range scenarios {
		prog, err := assemble(logger, sc.instr)
		if err != nil {
			return fmt.Errorf("%s: instrument: %w", sc.name, err)
		}
		vb := voice.NewBuilder(logger)
		sc.score(vb)
		vprog, err := vb.Finish()
		if err != nil {
			return fmt.Errorf("%s: score: %w", sc.name, err)
		}
		stream, err := voice.Compile(vprog)
		if err != nil {
			return fmt.Errorf("%s: compile: %w", sc.name, err)
		}

		r := voice.NewRenderer(stream, prog, sc.bpm, sampleRate)
		var samples []float32
		block := make([]float32, patch.DefaultBlockSize)
		for !r.Done() && len(samples) < sampleRate*30 {
			r.RenderBlock(block)
			samples = append(samples, block...)
		}

		if err := writeWAV("voice_"+sc.name+".wav", samples); err != nil {
			return err
		}
	}
	return nil
}

func writeWAV(name string, samples []float32) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer f.Close()
	if err := wavio.WriteMono(f, samples, sampleRate); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
