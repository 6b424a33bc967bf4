package voice

// MaxInstructions bounds how many score instructions a single Program may
// hold.
const MaxInstructions = 4096

// MaxRepeatDepth bounds how deeply REPEAT blocks may nest.
const MaxRepeatDepth = 8

// MaxEvents bounds how many NOTE_ON/NOTE_OFF events a single compiled
// EventStream may hold.
const MaxEvents = 8192

// Program is a flat, immutable score: a sequence of VInstr in source
// order, REPEAT_BEGIN/REPEAT_END pairs included uncompiled.
type Program struct {
	Instructions []VInstr
}
