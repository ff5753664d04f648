package cartridge

import (
	"encoding/binary"
	"fmt"
	"io"
)

// stateful is implemented by mapper boards with register state beyond what
// the ROM's byte size alone determines (bank selects, IRQ counters, shift
// registers). Boards without it (NROM and other fixed-wiring boards) have
// nothing extra to round-trip.
type stateful interface {
	SaveState(w io.Writer) error
	LoadState(r io.Reader) error
}

// SaveState writes the cartridge's writable memory (PRG-RAM, CHR-RAM),
// Game Genie slots, and any mapper-internal register state. The ROM bytes
// themselves are not written; LoadState is always called against a
// Cartridge already constructed from the same ROM image.
func (c *Cartridge) SaveState(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(c.prgRAM))); err != nil {
		return err
	}
	if _, err := w.Write(c.prgRAM); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, c.hasCHRRAM); err != nil {
		return err
	}
	if c.hasCHRRAM {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(c.chrRAM))); err != nil {
			return err
		}
		if _, err := w.Write(c.chrRAM); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, c.genie); err != nil {
		return err
	}
	if sm, ok := c.mapper.(stateful); ok {
		return sm.SaveState(w)
	}
	return nil
}

// LoadState restores state written by SaveState into a Cartridge already
// constructed from the matching ROM image (prgRAM/chrRAM already sized).
func (c *Cartridge) LoadState(r io.Reader) error {
	var prgRAMLen uint32
	if err := binary.Read(r, binary.LittleEndian, &prgRAMLen); err != nil {
		return err
	}
	if int(prgRAMLen) != len(c.prgRAM) {
		return fmt.Errorf("cartridge: save state PRG-RAM size %d does not match loaded ROM's %d", prgRAMLen, len(c.prgRAM))
	}
	if _, err := io.ReadFull(r, c.prgRAM); err != nil {
		return err
	}

	var hasCHRRAM bool
	if err := binary.Read(r, binary.LittleEndian, &hasCHRRAM); err != nil {
		return err
	}
	if hasCHRRAM != c.hasCHRRAM {
		return fmt.Errorf("cartridge: save state CHR-RAM presence does not match loaded ROM")
	}
	if hasCHRRAM {
		var chrRAMLen uint32
		if err := binary.Read(r, binary.LittleEndian, &chrRAMLen); err != nil {
			return err
		}
		if int(chrRAMLen) != len(c.chrRAM) {
			return fmt.Errorf("cartridge: save state CHR-RAM size %d does not match loaded ROM's %d", chrRAMLen, len(c.chrRAM))
		}
		if _, err := io.ReadFull(r, c.chrRAM); err != nil {
			return err
		}
	}

	// Each slot was written as active(1), address(2, little-endian),
	// data(1), compare(1), hasCompare(1).
	var genieRaw [len(c.genie) * 6]uint8
	if _, err := io.ReadFull(r, genieRaw[:]); err != nil {
		return err
	}
	for i := range c.genie {
		b := genieRaw[i*6 : i*6+6]
		c.genie[i] = genieEntry{b[0] != 0, binary.LittleEndian.Uint16(b[1:3]), b[3], b[4], b[5] != 0}
	}
	if sm, ok := c.mapper.(stateful); ok {
		return sm.LoadState(r)
	}
	return nil
}
