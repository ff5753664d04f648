package ppu

import (
	"encoding/binary"
	"io"
)

// SaveState writes every byte of mutable PPU state, including the
// background/sprite pipeline registers that make the shift-register
// rendering mid-scanline-accurate, and the attached Memory (nametables,
// palette RAM). Callbacks and the cartridge reference are not state; the
// caller reattaches them after LoadState.
func (p *PPU) SaveState(w io.Writer) error {
	fields := []any{
		p.ppuCtrl, p.ppuMask, p.ppuStatus, p.oamAddr,
		p.v, p.t, p.x, p.w,
		int32(p.scanline), int32(p.cycle), p.frameCount, p.oddFrame, p.readBuffer,
		p.bgShiftPatternLo, p.bgShiftPatternHi, p.bgShiftAttrLo, p.bgShiftAttrHi,
		p.ntLatch, p.atLatch, p.patternLoLatch, p.patternHiLatch,
		p.oam, p.secondaryOAM, p.spriteIndexes, p.spritePatLo, p.spritePatHi,
		p.spriteX, p.spriteAttr, p.spriteCount, p.sprite0OnLine, p.sprite0Hit, p.spriteOverflow,
		p.frameBuffer,
		p.backgroundEnabled, p.spritesEnabled, p.renderingEnabled,
		p.cycleCount,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	if p.memory != nil {
		return p.memory.SaveState(w)
	}
	return nil
}

// LoadState restores state written by SaveState, in the same field order.
func (p *PPU) LoadState(r io.Reader) error {
	var scanline32, cycle32 int32
	fields := []any{
		&p.ppuCtrl, &p.ppuMask, &p.ppuStatus, &p.oamAddr,
		&p.v, &p.t, &p.x, &p.w,
		&scanline32, &cycle32, &p.frameCount, &p.oddFrame, &p.readBuffer,
		&p.bgShiftPatternLo, &p.bgShiftPatternHi, &p.bgShiftAttrLo, &p.bgShiftAttrHi,
		&p.ntLatch, &p.atLatch, &p.patternLoLatch, &p.patternHiLatch,
		&p.oam, &p.secondaryOAM, &p.spriteIndexes, &p.spritePatLo, &p.spritePatHi,
		&p.spriteX, &p.spriteAttr, &p.spriteCount, &p.sprite0OnLine, &p.sprite0Hit, &p.spriteOverflow,
		&p.frameBuffer,
		&p.backgroundEnabled, &p.spritesEnabled, &p.renderingEnabled,
		&p.cycleCount,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	p.scanline = int(scanline32)
	p.cycle = int(cycle32)
	if p.memory != nil {
		return p.memory.LoadState(r)
	}
	return nil
}
