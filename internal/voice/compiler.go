package voice

import "fmt"

// Compile expands a Program's NOTE/REST/TIE/GLIDE/REPEAT instructions
// into a flat, time-ordered EventStream. REPEAT blocks are resolved by
// repeatedly recompiling their inner range; TIE is resolved by shifting
// the nearest preceding NOTE_OFF forward rather than emitting a new
// event, exactly as original_source/layer1/src/voice.c's compile_range
// does.
func Compile(prog *Program) (*EventStream, error) {
	es := &EventStream{}
	var beat float32
	if err := compileRange(prog.Instructions, 0, len(prog.Instructions), es, &beat); err != nil {
		return nil, err
	}
	es.TotalBeats = beat
	return es, nil
}

func compileRange(code []VInstr, lo, hi int, es *EventStream, beat *float32) error {
	for i := lo; i < hi; i++ {
		ins := code[i]
		switch ins.Op() {
		case VINote, VIGlide:
			durBeats := ins.DurBeats()
			vel := ins.VelLevel()
			if err := pushEvent(es, Event{Beat: *beat, Type: EvNoteOn, Pitch: ins.Pitch(), Velocity: vel}); err != nil {
				return err
			}
			if err := pushEvent(es, Event{Beat: *beat + durBeats, Type: EvNoteOff, Pitch: ins.Pitch(), Velocity: vel}); err != nil {
				return err
			}
			*beat += durBeats

		case VIRest:
			*beat += ins.DurBeats()

		case VITie:
			durBeats := ins.DurBeats()
			for k := len(es.Events) - 1; k >= 0; k-- {
				if es.Events[k].Type == EvNoteOff {
					es.Events[k].Beat += durBeats
					break
				}
			}
			*beat += durBeats

		case VIRepeatBegin:
			end := matchingRepeatEnd(code, i, hi)
			if end < 0 {
				return fmt.Errorf("voice: REPEAT_BEGIN at instruction %d has no matching REPEAT_END", i)
			}
			count := int(code[end].Count())
			if count < 1 {
				count = 1
			}
			for r := 0; r < count; r++ {
				if err := compileRange(code, i+1, end, es, beat); err != nil {
					return err
				}
			}
			i = end

		case VIRepeatEnd:
			// Only reachable for a stray END with no matching BEGIN in
			// this range; well-formed scores never hit this case because
			// VIRepeatBegin above consumes through its matching END.
			return fmt.Errorf("voice: REPEAT_END at instruction %d has no matching REPEAT_BEGIN", i)
		}
	}
	return nil
}

// matchingRepeatEnd scans forward from a REPEAT_BEGIN at index begin,
// tracking nesting depth, and returns the index of its matching
// REPEAT_END within [begin+1, hi), or -1 if none is found.
func matchingRepeatEnd(code []VInstr, begin, hi int) int {
	depth := 1
	for j := begin + 1; j < hi; j++ {
		switch code[j].Op() {
		case VIRepeatBegin:
			depth++
		case VIRepeatEnd:
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

func pushEvent(es *EventStream, e Event) error {
	if len(es.Events) >= MaxEvents {
		return fmt.Errorf("voice: event budget exceeded (max %d)", MaxEvents)
	}
	es.Events = append(es.Events, e)
	return nil
}
