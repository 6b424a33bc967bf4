package patch

// Program is a flat, immutable sequence of Patch VM instructions plus the
// three counters the builder latched while assembling it. A Program is
// pure data: many Patch States may share one Program, and a Program never
// mutates after Builder.Finish returns it.
type Program struct {
	Instructions []Instruction
	NumRegs      int // registers allocated, including the 4 reserved
	NumState     int // number of instructions, each owning one block of state slots
}

// stateBase returns the first of the four persistent state slots owned by
// the instruction at position idx. Slot ownership is derived strictly from
// instruction position, never from the destination register, per the
// Patch VM's state-slot contract; it wraps modulo MaxStateSlots, so from
// instruction 128 on an instruction shares its slots with the instruction
// 128 positions earlier. Nothing rejects programs that long.
func stateBase(idx int) int {
	return (idx * stateSlotsPerInstr) % MaxStateSlots
}
