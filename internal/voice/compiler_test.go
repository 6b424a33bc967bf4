package voice

import (
	"math"
	"testing"
)

func approxEqual(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

// TestCompileNoteSequence tests that a plain sequence of notes produces
// back-to-back NOTE_ON/NOTE_OFF pairs with no gaps.
func TestCompileNoteSequence(t *testing.T) {
	b := NewBuilder(nil)
	b.Note(60, Dur1_4, VelMF)
	b.Note(62, Dur1_4, VelMF)
	prog, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	es, err := Compile(prog)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(es.Events) != 4 {
		t.Fatalf("len(Events) = %d, want 4", len(es.Events))
	}
	quarter := float32(0.25)
	want := []struct {
		beat float32
		typ  EvType
	}{
		{0, EvNoteOn},
		{quarter, EvNoteOff},
		{quarter, EvNoteOn},
		{2 * quarter, EvNoteOff},
	}
	for i, w := range want {
		if !approxEqual(es.Events[i].Beat, w.beat) || es.Events[i].Type != w.typ {
			t.Errorf("Events[%d] = {beat=%v, type=%v}, want {beat=%v, type=%v}",
				i, es.Events[i].Beat, es.Events[i].Type, w.beat, w.typ)
		}
	}
	if !approxEqual(es.TotalBeats, 2*quarter) {
		t.Errorf("TotalBeats = %v, want %v", es.TotalBeats, 2*quarter)
	}
}

// TestCompileRestAdvancesWithoutEvents tests that REST advances the beat
// clock but emits no events.
func TestCompileRestAdvancesWithoutEvents(t *testing.T) {
	b := NewBuilder(nil)
	b.Note(60, Dur1_4, VelMF)
	b.Rest(Dur1_4)
	b.Note(64, Dur1_4, VelMF)
	prog, _ := b.Finish()
	es, err := Compile(prog)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(es.Events) != 4 {
		t.Fatalf("len(Events) = %d, want 4", len(es.Events))
	}
	if !approxEqual(es.Events[2].Beat, 0.5) {
		t.Errorf("second NOTE_ON beat = %v, want 0.5", es.Events[2].Beat)
	}
}

// TestCompileTieShiftsNearestNoteOff tests that TIE extends the most
// recently emitted NOTE_OFF rather than inserting a new event.
func TestCompileTieShiftsNearestNoteOff(t *testing.T) {
	b := NewBuilder(nil)
	b.Note(60, Dur1_4, VelMF)
	b.Tie(Dur1_8)
	prog, _ := b.Finish()
	es, err := Compile(prog)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(es.Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2 (TIE adds no event)", len(es.Events))
	}
	want := float32(0.25 + 0.125)
	if !approxEqual(es.Events[1].Beat, want) {
		t.Errorf("NOTE_OFF beat after TIE = %v, want %v", es.Events[1].Beat, want)
	}
	if !approxEqual(es.TotalBeats, want) {
		t.Errorf("TotalBeats = %v, want %v", es.TotalBeats, want)
	}
}

// TestCompileTieWithNoPriorNoteOffStillAdvances tests that a leading TIE
// (no preceding NOTE_OFF to shift) still advances the beat clock.
func TestCompileTieWithNoPriorNoteOffStillAdvances(t *testing.T) {
	b := NewBuilder(nil)
	b.Tie(Dur1_4)
	b.Note(60, Dur1_4, VelMF)
	prog, _ := b.Finish()
	es, err := Compile(prog)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if !approxEqual(es.Events[0].Beat, 0.25) {
		t.Errorf("NOTE_ON beat = %v, want 0.25", es.Events[0].Beat)
	}
}

// TestCompileRepeatExpandsInline tests that a REPEAT block plays its
// body count times in sequence.
func TestCompileRepeatExpandsInline(t *testing.T) {
	b := NewBuilder(nil)
	b.RepeatBegin()
	b.Note(60, Dur1_4, VelMF)
	b.RepeatEnd(3)
	prog, _ := b.Finish()
	es, err := Compile(prog)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(es.Events) != 6 {
		t.Fatalf("len(Events) = %d, want 6 (3 repeats x 2 events)", len(es.Events))
	}
	if !approxEqual(es.TotalBeats, 0.75) {
		t.Errorf("TotalBeats = %v, want 0.75", es.TotalBeats)
	}
}

// TestCompileNestedRepeat tests that nested REPEAT blocks are located by
// depth, not by the first REPEAT_END encountered.
func TestCompileNestedRepeat(t *testing.T) {
	b := NewBuilder(nil)
	b.RepeatBegin() // outer x2
	b.Note(60, Dur1_4, VelMF)
	b.RepeatBegin() // inner x2
	b.Note(64, Dur1_8, VelMF)
	b.RepeatEnd(2)
	b.RepeatEnd(2)
	prog, _ := b.Finish()
	es, err := Compile(prog)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	// outer x2 of [note(1/4), inner x2 of note(1/8)] = outer x2 of 3 notes = 6 notes = 12 events.
	if len(es.Events) != 12 {
		t.Fatalf("len(Events) = %d, want 12", len(es.Events))
	}
}

// TestCompileUnmatchedRepeatBeginIsAnError tests that Compile reports an
// error for a REPEAT_BEGIN with no matching REPEAT_END rather than
// scanning past the end of the program.
func TestCompileUnmatchedRepeatBeginIsAnError(t *testing.T) {
	prog := &Program{Instructions: []VInstr{NewVInstr(VIRepeatBegin, 0, 0, 0)}}
	if _, err := Compile(prog); err == nil {
		t.Fatalf("Compile() error = nil, want unmatched REPEAT_BEGIN error")
	}
}
