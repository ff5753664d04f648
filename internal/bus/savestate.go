package bus

import (
	"encoding/binary"
	"fmt"
	"io"
)

// cartridgeState is the subset of CartridgeInterface a save state round
// trips through; satisfied by *cartridge.Cartridge.
type cartridgeState interface {
	SaveState(w io.Writer) error
	LoadState(r io.Reader) error
}

// SaveState writes work RAM, open-bus state, and every owned component's
// state, in a fixed order: CPU, PPU, APU, cartridge.
func (b *Bus) SaveState(w io.Writer) error {
	fields := []any{b.ram, b.openBus, b.totalCycles}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	if err := b.CPU.SaveState(w); err != nil {
		return err
	}
	if err := b.PPU.SaveState(w); err != nil {
		return err
	}
	if err := b.APU.SaveState(w); err != nil {
		return err
	}
	cs, ok := b.cart.(cartridgeState)
	if !ok {
		return fmt.Errorf("bus: loaded cartridge does not support save states")
	}
	return cs.SaveState(w)
}

// LoadState restores state written by SaveState. The bus must already have
// the same cartridge loaded (LoadCartridge) that produced the state.
func (b *Bus) LoadState(r io.Reader) error {
	fields := []any{&b.ram, &b.openBus, &b.totalCycles}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	if err := b.CPU.LoadState(r); err != nil {
		return err
	}
	if err := b.PPU.LoadState(r); err != nil {
		return err
	}
	if err := b.APU.LoadState(r); err != nil {
		return err
	}
	cs, ok := b.cart.(cartridgeState)
	if !ok {
		return fmt.Errorf("bus: loaded cartridge does not support save states")
	}
	return cs.LoadState(r)
}
