package cpu

import (
	"encoding/binary"
	"io"
)

// SaveState writes every byte of mutable CPU state in a fixed field order.
// The instruction lookup table and memory interface are not part of state;
// they are reconstructed by New.
func (cpu *CPU) SaveState(w io.Writer) error {
	fields := []any{
		cpu.A, cpu.X, cpu.Y, cpu.SP, cpu.PC,
		cpu.C, cpu.Z, cpu.I, cpu.D, cpu.B, cpu.V, cpu.N,
		cpu.cycles,
		cpu.nmiPending, cpu.irqSources, cpu.nmiPrevious,
		cpu.extraStallCycles,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

// LoadState restores state written by SaveState, in the same field order.
func (cpu *CPU) LoadState(r io.Reader) error {
	fields := []any{
		&cpu.A, &cpu.X, &cpu.Y, &cpu.SP, &cpu.PC,
		&cpu.C, &cpu.Z, &cpu.I, &cpu.D, &cpu.B, &cpu.V, &cpu.N,
		&cpu.cycles,
		&cpu.nmiPending, &cpu.irqSources, &cpu.nmiPrevious,
		&cpu.extraStallCycles,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}
