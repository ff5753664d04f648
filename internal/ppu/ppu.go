// Package ppu implements the NES Picture Processing Unit (2C02): a
// scanline/dot-driven renderer fed by background and sprite shift-register
// pipelines, rather than a pixel-at-a-time coordinate lookup.
package ppu

// PPU represents the NES Picture Processing Unit (2C02).
type PPU struct {
	// CPU-visible registers
	ppuCtrl   uint8
	ppuMask   uint8
	ppuStatus uint8
	oamAddr   uint8

	// Loopy scroll registers
	v uint16 // current VRAM address (15 bits)
	t uint16 // temporary VRAM address / address latch
	x uint8  // fine X scroll (3 bits)
	w bool   // write toggle

	memory *Memory

	scanline   int
	cycle      int
	frameCount uint64
	oddFrame   bool
	readBuffer uint8

	// Background pipeline: two tiles' worth of shift registers, fed by
	// fetches that run two cycles ahead of the pixels they paint.
	bgShiftPatternLo uint16
	bgShiftPatternHi uint16
	bgShiftAttrLo    uint16
	bgShiftAttrHi    uint16
	ntLatch          uint8
	atLatch          uint8
	patternLoLatch   uint8
	patternHiLatch   uint8

	// Sprite data
	oam            [256]uint8
	secondaryOAM   [32]uint8
	spriteIndexes  [8]uint8 // original OAM index of each secondary-OAM entry
	spritePatLo    [8]uint8
	spritePatHi    [8]uint8
	spriteX        [8]uint8
	spriteAttr     [8]uint8
	spriteCount    uint8
	sprite0OnLine  bool
	sprite0Hit     bool
	spriteOverflow bool

	frameBuffer [256 * 240]uint32

	nmiCallback           func()
	frameCompleteCallback func()
	a12Callback           func(address uint16, cycle uint64)

	backgroundEnabled bool
	spritesEnabled    bool
	renderingEnabled  bool

	// suppressVBLEdge is set by a $2002 read landing one PPU dot before
	// the VBlank flag would be set (scanline 241, dot 0), which on real
	// hardware races the flag-set and prevents both it and the NMI it
	// would trigger from happening for this VBlank period.
	suppressVBLEdge bool

	cycleCount uint64
}

// New creates a new PPU instance.
func New() *PPU {
	return &PPU{
		scanline: -1,
	}
}

// Reset resets the PPU to its power-up state.
func (p *PPU) Reset() {
	p.ppuCtrl = 0
	p.ppuMask = 0
	p.ppuStatus = 0xA0
	p.oamAddr = 0
	p.v, p.t, p.x, p.w = 0, 0, 0, false

	p.scanline = -1
	p.cycle = 0
	p.frameCount = 0
	p.oddFrame = false
	p.readBuffer = 0

	p.bgShiftPatternLo, p.bgShiftPatternHi = 0, 0
	p.bgShiftAttrLo, p.bgShiftAttrHi = 0, 0

	p.spriteCount = 0
	p.sprite0Hit = false
	p.spriteOverflow = false

	p.backgroundEnabled = false
	p.spritesEnabled = false
	p.renderingEnabled = false

	p.cycleCount = 0
	p.suppressVBLEdge = false

	for i := range p.oam {
		p.oam[i] = 0
	}
	for i := range p.frameBuffer {
		p.frameBuffer[i] = 0
	}
}

// SetMemory sets the PPU's memory interface (pattern tables, nametables,
// palette RAM).
func (p *PPU) SetMemory(memory *Memory) {
	p.memory = memory
}

// SetNMICallback sets the callback invoked when VBlank NMI fires.
func (p *PPU) SetNMICallback(callback func()) {
	p.nmiCallback = callback
}

// SetFrameCompleteCallback sets the callback invoked at the end of each frame.
func (p *PPU) SetFrameCompleteCallback(callback func()) {
	p.frameCompleteCallback = callback
}

// SetA12Callback wires a callback invoked on every PPU address-bus access
// with the PPU's running dot counter, so mapper IRQ counters (MMC3) can
// observe A12 transitions and debounce them against real elapsed time.
func (p *PPU) SetA12Callback(callback func(address uint16, cycle uint64)) {
	p.a12Callback = callback
}

func (p *PPU) fetchMemory(address uint16) uint8 {
	if p.a12Callback != nil {
		p.a12Callback(address, p.cycleCount)
	}
	return p.memory.Read(address)
}

// storeMemory is fetchMemory's write counterpart, used for the CPU-driven
// $2007 VRAM write path so it notifies A12 transitions the same way the
// rendering engine's own pattern/nametable fetches do.
func (p *PPU) storeMemory(address uint16, value uint8) {
	if p.a12Callback != nil {
		p.a12Callback(address, p.cycleCount)
	}
	p.memory.Write(address, value)
}

// ReadRegister reads from a PPU register (CPU $2000-$2007).
func (p *PPU) ReadRegister(address uint16) uint8 {
	switch address {
	case 0x2000, 0x2001, 0x2003, 0x2005, 0x2006:
		return p.ppuStatus & 0x1F // write-only registers expose open bus
	case 0x2002:
		status := p.ppuStatus
		// Reading one dot before the VBlank flag is set suppresses that
		// flag-set and its NMI for this VBlank period (the read races the
		// edge on real hardware); the exact-same-dot race isn't
		// distinguishable at this bus's per-access tick granularity (see
		// DESIGN.md).
		if p.scanline == 241 && p.cycle == 0 {
			p.suppressVBLEdge = true
		}
		p.ppuStatus &= 0x3F // clear VBL (bit7) and sprite-0 hit (bit6)
		p.sprite0Hit = false
		p.w = false
		return status
	case 0x2004:
		return p.oam[p.oamAddr]
	case 0x2007:
		return p.readPPUData()
	default:
		return 0
	}
}

// WriteRegister writes to a PPU register (CPU $2000-$2007).
func (p *PPU) WriteRegister(address uint16, value uint8) {
	switch address {
	case 0x2000:
		p.ppuCtrl = value
		p.t = (p.t & 0xF3FF) | ((uint16(value) & 0x03) << 10)
		p.updateRenderingFlags()
		p.checkNMI()
	case 0x2001:
		p.ppuMask = value
		p.updateRenderingFlags()
	case 0x2002:
		// read-only
	case 0x2003:
		p.oamAddr = value
	case 0x2004:
		p.oam[p.oamAddr] = value
		p.oamAddr++
	case 0x2005:
		p.writePPUScroll(value)
	case 0x2006:
		p.writePPUAddr(value)
	case 0x2007:
		p.writePPUData(value)
	}
}

// WriteOAM writes to OAM at the given address (used by OAM-DMA).
func (p *PPU) WriteOAM(address uint8, value uint8) {
	p.oam[address] = value
}

// Step advances the PPU by a single dot.
func (p *PPU) Step() {
	p.cycleCount++

	// On odd frames with rendering enabled, dot 339 of the pre-render
	// line is skipped entirely (the real PPU jumps straight from dot 338
	// to dot 340), shortening that frame by one dot.
	if p.scanline == -1 && p.cycle == 338 && p.renderingEnabled && p.oddFrame {
		p.cycle += 2
	} else {
		p.cycle++
	}
	if p.cycle > 340 {
		p.cycle = 0
		p.scanline++
		if p.scanline > 260 {
			p.scanline = -1
			p.frameCount++
			p.oddFrame = !p.oddFrame
			if p.frameCompleteCallback != nil {
				p.frameCompleteCallback()
			}
		}
	}

	if p.scanline == 241 && p.cycle == 1 {
		if !p.suppressVBLEdge {
			p.ppuStatus |= 0x80
			if p.ppuCtrl&0x80 != 0 && p.nmiCallback != nil {
				p.nmiCallback()
			}
		}
		p.ppuStatus &= 0x9F // clear sprite-0 hit and overflow at VBlank start
		p.sprite0Hit = false
		p.spriteOverflow = false
		p.suppressVBLEdge = false
	}

	if p.scanline == -1 && p.cycle == 1 {
		p.ppuStatus &= 0x7F
	}

	if p.scanline >= -1 && p.scanline < 240 {
		p.renderDot()
	}
}

// renderDot drives the background and sprite pipelines for the current dot.
// Background shift registers advance, and tile fetches run, on
// visible/prefetch dots only while rendering is enabled; outputPixel is
// called on every visible dot of a visible scanline either way.
func (p *PPU) renderDot() {
	visibleOrPrefetch := (p.cycle >= 1 && p.cycle <= 256) || (p.cycle >= 321 && p.cycle <= 336)

	if p.renderingEnabled {
		if visibleOrPrefetch {
			p.shiftBackgroundRegisters()
			p.runBackgroundFetch()
		}
		if p.cycle == 256 {
			p.incrementY()
		}
		if p.cycle == 257 {
			p.copyX()
			if p.scanline >= 0 {
				p.evaluateSprites()
			}
		}
		if p.scanline == -1 && p.cycle >= 280 && p.cycle <= 304 {
			p.copyY()
		}
		if p.cycle >= 257 && p.cycle <= 320 {
			p.fetchSpritePatterns()
		}
	}

	if p.scanline >= 0 && p.cycle >= 1 && p.cycle <= 256 {
		p.outputPixel(p.cycle-1, p.scanline)
	}
}

// runBackgroundFetch performs the 8-cycle NT/AT/pattern-low/pattern-high
// fetch sequence and reloads the shift registers at tile boundaries.
func (p *PPU) runBackgroundFetch() {
	switch p.cycle % 8 {
	case 1:
		p.reloadBackgroundShifters()
		p.ntLatch = p.fetchMemory(0x2000 | (p.v & 0x0FFF))
	case 3:
		addr := 0x23C0 | (p.v & 0x0C00) | ((p.v >> 4) & 0x38) | ((p.v >> 2) & 0x07)
		attr := p.fetchMemory(addr)
		shift := ((p.v >> 4) & 4) | (p.v & 2)
		p.atLatch = (attr >> shift) & 0x03
	case 5:
		base := p.patternTableBase(p.ppuCtrl & 0x10)
		fineY := (p.v >> 12) & 0x07
		p.patternLoLatch = p.fetchMemory(base + uint16(p.ntLatch)*16 + fineY)
	case 7:
		base := p.patternTableBase(p.ppuCtrl & 0x10)
		fineY := (p.v >> 12) & 0x07
		p.patternHiLatch = p.fetchMemory(base + uint16(p.ntLatch)*16 + fineY + 8)
	case 0:
		p.incrementX()
	}
}

func (p *PPU) patternTableBase(ctrlBit uint8) uint16 {
	if ctrlBit != 0 {
		return 0x1000
	}
	return 0x0000
}

func (p *PPU) reloadBackgroundShifters() {
	p.bgShiftPatternLo = (p.bgShiftPatternLo & 0xFF00) | uint16(p.patternLoLatch)
	p.bgShiftPatternHi = (p.bgShiftPatternHi & 0xFF00) | uint16(p.patternHiLatch)
	attrLo, attrHi := uint16(0), uint16(0)
	if p.atLatch&0x01 != 0 {
		attrLo = 0xFF
	}
	if p.atLatch&0x02 != 0 {
		attrHi = 0xFF
	}
	p.bgShiftAttrLo = (p.bgShiftAttrLo & 0xFF00) | attrLo
	p.bgShiftAttrHi = (p.bgShiftAttrHi & 0xFF00) | attrHi
}

func (p *PPU) shiftBackgroundRegisters() {
	p.bgShiftPatternLo <<= 1
	p.bgShiftPatternHi <<= 1
	p.bgShiftAttrLo <<= 1
	p.bgShiftAttrHi <<= 1
}

// backgroundPixel returns the color/palette index selected by fine X,
// reading bit 15 (the one about to scroll off the high end of each register).
func (p *PPU) backgroundPixel() (colorIndex, paletteIndex uint8) {
	mux := uint16(0x8000) >> p.x
	bit0 := uint8(0)
	bit1 := uint8(0)
	if p.bgShiftPatternLo&mux != 0 {
		bit0 = 1
	}
	if p.bgShiftPatternHi&mux != 0 {
		bit1 = 1
	}
	colorIndex = (bit1 << 1) | bit0

	pal0 := uint8(0)
	pal1 := uint8(0)
	if p.bgShiftAttrLo&mux != 0 {
		pal0 = 1
	}
	if p.bgShiftAttrHi&mux != 0 {
		pal1 = 1
	}
	paletteIndex = (pal1 << 1) | pal0
	return
}

// evaluateSprites scans OAM for sprites visible on the NEXT scanline, the
// way real hardware does it during cycles 65-256 of the current one; this
// models it as a single pass at cycle 257 for simplicity.
func (p *PPU) evaluateSprites() {
	p.spriteCount = 0
	p.spriteOverflow = false
	p.sprite0OnLine = false

	for i := range p.secondaryOAM {
		p.secondaryOAM[i] = 0xFF
	}
	for i := range p.spriteIndexes {
		p.spriteIndexes[i] = 0xFF
	}

	spriteHeight := 8
	if p.ppuCtrl&0x20 != 0 {
		spriteHeight = 16
	}

	targetLine := p.scanline + 1
	found := 0
	for i := 0; i < 64; i++ {
		base := i * 4
		y := int(p.oam[base])
		if targetLine >= y+1 && targetLine < y+1+spriteHeight {
			if found < 8 {
				dst := found * 4
				copy(p.secondaryOAM[dst:dst+4], p.oam[base:base+4])
				p.spriteIndexes[found] = uint8(i)
				if i == 0 {
					p.sprite0OnLine = true
				}
				found++
			} else {
				p.spriteOverflow = true
				p.ppuStatus |= 0x20
				break
			}
		}
	}
	p.spriteCount = uint8(found)
}

// fetchSpritePatterns loads the pattern shift data for sprites found on the
// upcoming scanline, matching the PPU's cycle 257-320 sprite-fetch window.
func (p *PPU) fetchSpritePatterns() {
	slot := (p.cycle - 257) / 8
	if p.cycle%8 != 0 || slot >= 8 {
		return
	}
	if uint8(slot) >= p.spriteCount {
		p.spritePatLo[slot] = 0
		p.spritePatHi[slot] = 0
		return
	}

	base := slot * 4
	y := int(p.secondaryOAM[base])
	tile := p.secondaryOAM[base+1]
	attr := p.secondaryOAM[base+2]
	x := p.secondaryOAM[base+3]

	spriteHeight := 8
	if p.ppuCtrl&0x20 != 0 {
		spriteHeight = 16
	}
	row := p.scanline + 1 - (y + 1)
	if attr&0x80 != 0 {
		row = spriteHeight - 1 - row
	}

	var tableBase uint16
	if spriteHeight == 16 {
		if tile&0x01 != 0 {
			tableBase = 0x1000
		}
		tile &= 0xFE
		if row >= 8 {
			tile++
			row -= 8
		}
	} else {
		tableBase = p.patternTableBase(p.ppuCtrl & 0x08)
	}

	addr := tableBase + uint16(tile)*16 + uint16(row)
	lo := p.fetchMemory(addr)
	hi := p.fetchMemory(addr + 8)
	if attr&0x40 != 0 {
		lo = reverseBits(lo)
		hi = reverseBits(hi)
	}
	p.spritePatLo[slot] = lo
	p.spritePatHi[slot] = hi
	p.spriteX[slot] = x
	p.spriteAttr[slot] = attr
}

func reverseBits(b uint8) uint8 {
	var r uint8
	for i := 0; i < 8; i++ {
		r <<= 1
		r |= b & 1
		b >>= 1
	}
	return r
}

// outputPixel composites the background and sprite pipelines for one pixel
// and writes the result into the frame buffer.
func (p *PPU) outputPixel(x, y int) {
	if p.memory == nil {
		return
	}

	var bgColor, bgPalette uint8
	if p.backgroundEnabled && !(x < 8 && p.ppuMask&0x02 == 0) {
		bgColor, bgPalette = p.backgroundPixel()
	}

	var spColor, spPalette uint8
	var spPriority bool
	var spriteIsZero bool
	if p.spritesEnabled && !(x < 8 && p.ppuMask&0x04 == 0) {
		for i := 0; i < int(p.spriteCount); i++ {
			offset := x - int(p.spriteX[i])
			if offset < 0 || offset > 7 {
				continue
			}
			bit0 := (p.spritePatLo[i] >> uint(7-offset)) & 1
			bit1 := (p.spritePatHi[i] >> uint(7-offset)) & 1
			color := (bit1 << 1) | bit0
			if color == 0 {
				continue
			}
			spColor = color
			spPalette = p.spriteAttr[i] & 0x03
			spPriority = p.spriteAttr[i]&0x20 != 0
			spriteIsZero = p.spriteIndexes[i] == 0 && p.sprite0OnLine
			break
		}
	}

	if spriteIsZero && bgColor != 0 && spColor != 0 && !p.sprite0Hit &&
		p.backgroundEnabled && p.spritesEnabled && x != 255 {
		p.sprite0Hit = true
		p.ppuStatus |= 0x40
	}

	var nesColor uint8
	switch {
	case bgColor == 0 && spColor == 0:
		nesColor = p.memory.Read(0x3F00)
	case bgColor == 0:
		nesColor = p.memory.Read(0x3F10 + uint16(spPalette)*4 + uint16(spColor))
	case spColor == 0:
		nesColor = p.memory.Read(0x3F00 + uint16(bgPalette)*4 + uint16(bgColor))
	case spPriority:
		nesColor = p.memory.Read(0x3F00 + uint16(bgPalette)*4 + uint16(bgColor))
	default:
		nesColor = p.memory.Read(0x3F10 + uint16(spPalette)*4 + uint16(spColor))
	}

	p.frameBuffer[y*256+x] = NESColorToRGB(nesColor)
}

func (p *PPU) updateRenderingFlags() {
	p.backgroundEnabled = (p.ppuMask & 0x08) != 0
	p.spritesEnabled = (p.ppuMask & 0x10) != 0
	p.renderingEnabled = p.backgroundEnabled || p.spritesEnabled
}

func (p *PPU) checkNMI() {
	if (p.ppuCtrl&0x80 != 0) && (p.ppuStatus&0x80 != 0) && p.nmiCallback != nil {
		p.nmiCallback()
	}
}

func (p *PPU) writePPUScroll(value uint8) {
	if !p.w {
		p.t = (p.t & 0xFFE0) | (uint16(value) >> 3)
		p.x = value & 0x07
		p.w = true
	} else {
		p.t = (p.t & 0x8FFF) | ((uint16(value) & 0x07) << 12)
		p.t = (p.t & 0xFC1F) | ((uint16(value) & 0xF8) << 2)
		p.w = false
	}
}

func (p *PPU) writePPUAddr(value uint8) {
	if !p.w {
		p.t = (p.t & 0x80FF) | ((uint16(value) & 0x3F) << 8)
		p.w = true
	} else {
		p.t = (p.t & 0xFF00) | uint16(value)
		p.v = p.t
		p.w = false
	}
}

func (p *PPU) readPPUData() uint8 {
	var data uint8
	if p.memory == nil {
		data = 0
	} else if p.v >= 0x3F00 {
		data = p.memory.Read(p.v)
		p.readBuffer = p.fetchMemory(p.v & 0x2FFF)
	} else {
		data = p.readBuffer
		p.readBuffer = p.fetchMemory(p.v)
	}
	p.incrementVRAMAddress()
	return data
}

func (p *PPU) writePPUData(value uint8) {
	if p.memory != nil {
		p.storeMemory(p.v, value)
	}
	p.incrementVRAMAddress()
}

func (p *PPU) incrementVRAMAddress() {
	if p.ppuCtrl&0x04 != 0 {
		p.v += 32
	} else {
		p.v += 1
	}
	p.v &= 0x3FFF
}

// incrementX advances the coarse X scroll, wrapping into the next
// horizontal nametable.
func (p *PPU) incrementX() {
	if (p.v & 0x001F) == 31 {
		p.v &^= 0x001F
		p.v ^= 0x0400
	} else {
		p.v++
	}
}

// incrementY advances fine Y, carrying into coarse Y and the vertical
// nametable at the scanline boundary.
func (p *PPU) incrementY() {
	if (p.v & 0x7000) != 0x7000 {
		p.v += 0x1000
	} else {
		p.v &^= 0x7000
		y := (p.v & 0x03E0) >> 5
		switch y {
		case 29:
			y = 0
			p.v ^= 0x0800
		case 31:
			y = 0
		default:
			y++
		}
		p.v = (p.v &^ 0x03E0) | (y << 5)
	}
}

func (p *PPU) copyX() {
	p.v = (p.v & 0xFBE0) | (p.t & 0x041F)
}

func (p *PPU) copyY() {
	p.v = (p.v & 0x841F) | (p.t & 0x7BE0)
}

// GetFrameBuffer returns the current frame buffer.
func (p *PPU) GetFrameBuffer() [256 * 240]uint32 { return p.frameBuffer }

// GetFrameCount returns the current frame count.
func (p *PPU) GetFrameCount() uint64 { return p.frameCount }

// SetFrameCount sets the frame count (used when restoring a save state).
func (p *PPU) SetFrameCount(count uint64) { p.frameCount = count }

// GetScanline returns the current scanline.
func (p *PPU) GetScanline() int { return p.scanline }

// GetCycle returns the current cycle (dot) within the scanline.
func (p *PPU) GetCycle() int { return p.cycle }

// IsRenderingEnabled reports whether background or sprite rendering is on.
func (p *PPU) IsRenderingEnabled() bool { return p.renderingEnabled }

// IsVBlank reports whether the PPU is currently in vertical blank.
func (p *PPU) IsVBlank() bool { return (p.ppuStatus & 0x80) != 0 }

// GetCycleCount returns the total number of PPU dots advanced.
func (p *PPU) GetCycleCount() uint64 { return p.cycleCount }

// ClearFrameBuffer fills the frame buffer with a single color.
func (p *PPU) ClearFrameBuffer(color uint32) {
	for i := range p.frameBuffer {
		p.frameBuffer[i] = color
	}
}

// nesColorPalette is the NTSC 2C02 palette.
var nesColorPalette = [64]uint32{
	0xFF666666, 0xFF002A88, 0xFF1412A7, 0xFF3B00A4, 0xFF5C007E, 0xFF6E0040, 0xFF6C0600, 0xFF561D00,
	0xFF333500, 0xFF0B4800, 0xFF005200, 0xFF004F08, 0xFF00404D, 0xFF000000, 0xFF000000, 0xFF000000,
	0xFFADADAD, 0xFF155FD9, 0xFF4240FF, 0xFF7527FE, 0xFFA01ACC, 0xFFB71E7B, 0xFFB53120, 0xFF994E00,
	0xFF6B6D00, 0xFF388700, 0xFF0C9300, 0xFF008F32, 0xFF007C8D, 0xFF000000, 0xFF000000, 0xFF000000,
	0xFFFFFEFF, 0xFF64B0FF, 0xFF9290FF, 0xFFC676FF, 0xFFF36AFF, 0xFFFE6ECC, 0xFFFE8170, 0xFFEA9E22,
	0xFFBCBE00, 0xFF88D800, 0xFF5CE430, 0xFF45E082, 0xFF48CDDE, 0xFF4F4F4F, 0xFF000000, 0xFF000000,
	0xFFFFFEFF, 0xFFC0DFFF, 0xFFD3D2FF, 0xFFE8C8FF, 0xFFFBC2FF, 0xFFFEC4EA, 0xFFFECCC5, 0xFFF7D8A5,
	0xFFE4E594, 0xFFCFF29B, 0xFFBEFBB3, 0xFFB8F8D8, 0xFFB8F8F8, 0xFF000000, 0xFF000000, 0xFF000000,
}

// NESColorToRGB converts a NES color index (0-63) to an RGB value.
func NESColorToRGB(colorIndex uint8) uint32 {
	if colorIndex >= 64 {
		return 0
	}
	return nesColorPalette[colorIndex] & 0x00FFFFFF
}
