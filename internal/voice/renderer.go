package voice

import "shmc/internal/patch"

// silenceThreshold is how quiet a probed sample must be, after the event
// stream is exhausted, before the renderer declares the piece finished.
const silenceThreshold = 1e-5

// Renderer drives an EventStream against a single Patch, sample
// accurately: NOTE_ON events start a new note, NOTE_OFF events push the
// active note's envelopes into release (the renderer is monophonic — a
// NOTE_OFF releases whatever is currently sounding regardless of pitch,
// per original_source/layer1/src/voice.c's voice_render_block). Many
// Renderers may share one patch.Program; each owns its own Patch.
type Renderer struct {
	stream *EventStream
	active *patch.Patch

	bpm float32
	sr  float32

	sampleTime float32
	beatTime   float32
	evCursor   int
	hasActive  bool
	done       bool
}

// NewRenderer creates a Renderer that plays stream at bpm beats per
// minute, sampled at sr Hz, against prog.
func NewRenderer(stream *EventStream, prog *patch.Program, bpm, sr float32) *Renderer {
	return &Renderer{
		stream: stream,
		active: patch.NewPatch(prog),
		bpm:    bpm,
		sr:     sr,
	}
}

// Done reports whether every event has fired and the active patch has
// decayed to silence: once true, RenderBlock only ever produces zeros.
func (r *Renderer) Done() bool { return r.done }

// RenderBlock fills out with the next len(out) samples.
func (r *Renderer) RenderBlock(out []float32) {
	if r.done {
		for i := range out {
			out[i] = 0
		}
		return
	}

	secsPerBeat := float32(60)
	if r.bpm > 0 {
		secsPerBeat = 60 / r.bpm
	}
	dt := float32(0)
	if r.sr > 0 {
		dt = 1 / r.sr
	}

	var sample [1]float32
	for i := range out {
		for r.evCursor < len(r.stream.Events) && r.stream.Events[r.evCursor].Beat <= r.beatTime {
			ev := r.stream.Events[r.evCursor]
			switch ev.Type {
			case EvNoteOn:
				r.active.NoteOn(r.sr, int(ev.Pitch), ev.Velocity)
				r.hasActive = true
			case EvNoteOff:
				if r.hasActive {
					r.active.Release()
				}
			}
			r.evCursor++
		}

		if r.hasActive {
			r.active.Step(sample[:], 1)
			out[i] = sample[0]
		} else {
			out[i] = 0
		}

		r.sampleTime += dt
		r.beatTime = r.sampleTime / secsPerBeat
	}

	if r.evCursor >= len(r.stream.Events) {
		allSilent := true
		if r.hasActive {
			var probe [1]float32
			r.active.Step(probe[:], 1)
			if absF(probe[0]) >= silenceThreshold {
				allSilent = false
			}
		}
		if allSilent {
			r.done = true
		}
	}
}

func absF(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
