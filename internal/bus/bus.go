// Package bus wires the CPU, PPU, APU, cartridge, and controllers into the
// NES memory map and drives the per-cycle timing between them.
package bus

import (
	"nesdeck/internal/apu"
	"nesdeck/internal/cartridge"
	"nesdeck/internal/cpu"
	"nesdeck/internal/input"
	"nesdeck/internal/ppu"
)

// CartridgeInterface is the subset of *cartridge.Cartridge the bus depends
// on, so tests can supply cartridge.MockCartridge or any equivalent double.
type CartridgeInterface interface {
	ReadPRG(address uint16) uint8
	WritePRG(address uint16, value uint8)
	ReadCHR(address uint16) uint8
	WriteCHR(address uint16, value uint8)
	Mirroring() cartridge.MirrorMode
	Clock()
	NotifyA12(address uint16, cycle uint64)
	IRQ() bool
	ClearIRQ()
}

// Bus implements the NES address space the CPU sees (cpu.MemoryInterface)
// and owns the PPU×3/APU×1 per-access ticking that keeps every chip in
// lockstep with the CPU's own clock.
type Bus struct {
	CPU   *cpu.CPU
	PPU   *ppu.PPU
	APU   *apu.APU
	Input *input.InputState
	cart  CartridgeInterface

	ram         [0x800]uint8
	openBus     uint8
	totalCycles uint64
	accessCount uint64 // memory accesses made during the Step() in progress
	frameReady  bool
}

// New creates a Bus with no cartridge loaded. LoadCartridge must be called
// before Run/Step produce meaningful output.
func New() *Bus {
	b := &Bus{
		PPU:   ppu.New(),
		APU:   apu.New(),
		Input: input.NewInputState(),
	}
	b.CPU = cpu.New(b)
	b.PPU.SetNMICallback(b.triggerNMI)
	b.PPU.SetFrameCompleteCallback(b.onFrameComplete)
	b.APU.SetDMAReadCallback(b.readDMC)
	b.APU.SetDMAStallCallback(b.CPU.Stall)
	b.Reset()
	return b
}

// LoadCartridge installs a cartridge and resets the machine.
func (b *Bus) LoadCartridge(cart CartridgeInterface) {
	b.cart = cart
	mem := ppu.NewMemory(cart, cart.Mirroring())
	b.PPU.SetMemory(mem)
	b.PPU.SetA12Callback(b.onA12)
	b.Reset()
}

// UnloadCartridge detaches the current cartridge. PRG reads fall back to
// open bus; CHR reads keep going through the PPU's last-attached memory,
// which is harmless since nothing drives new pattern data without a cart.
func (b *Bus) UnloadCartridge() {
	b.cart = nil
}

// Reset resets every component and zeroes bus-level counters.
func (b *Bus) Reset() {
	b.CPU.Reset()
	b.PPU.Reset()
	b.APU.Reset()
	b.Input.Reset()
	b.totalCycles = 0
	b.openBus = 0
}

func (b *Bus) triggerNMI() {
	b.CPU.SetNMI(true)
	b.CPU.SetNMI(false)
}

func (b *Bus) onFrameComplete() {
	b.frameReady = true
}

// onA12 forwards PPU address-bus transitions (and the PPU dot they happened
// on) to the cartridge so mapper IRQ counters (MMC3) can track A12 rises and
// debounce them against elapsed time, and syncs the mapper's IRQ line onto
// the CPU's mapper IRQ source bit.
func (b *Bus) onA12(address uint16, cycle uint64) {
	if b.cart == nil {
		return
	}
	b.cart.NotifyA12(address, cycle)
	b.CPU.SetIRQ(cpu.IRQSourceMapper, b.cart.IRQ())
}

// tick advances PPU (×3) and APU (×1) by one CPU cycle and syncs the
// interrupt lines the CPU needs to see before its next instruction byte.
func (b *Bus) tick() {
	b.totalCycles++
	b.PPU.Step()
	b.PPU.Step()
	b.PPU.Step()
	b.APU.Step()

	b.CPU.SetIRQ(cpu.IRQSourceAPUFrame, b.APU.GetFrameIRQ())
	b.CPU.SetIRQ(cpu.IRQSourceDMC, b.APU.GetDMCIRQ())
}

// Read implements cpu.MemoryInterface. Every call ticks the bus once,
// modeling the real NES where the CPU, PPU, and APU all step together on
// each cycle of a memory access.
func (b *Bus) Read(address uint16) uint8 {
	value := b.dispatchRead(address)
	b.accessCount++
	b.tick()
	b.openBus = value
	return value
}

// Write implements cpu.MemoryInterface.
func (b *Bus) Write(address uint16, value uint8) {
	b.dispatchWrite(address, value)
	if address >= 0x4018 && address < 0x4020 {
		b.openBus = value
	}
	b.accessCount++
	b.tick()
}

// rawRead reads without ticking the bus, for contexts (DMC-DMA) where the
// caller already accounted for the stolen cycles itself.
func (b *Bus) rawRead(address uint16) uint8 {
	return b.dispatchRead(address)
}

func (b *Bus) dispatchRead(address uint16) uint8 {
	var value uint8
	switch {
	case address < 0x2000:
		value = b.ram[address&0x07FF]
	case address < 0x4000:
		value = b.PPU.ReadRegister(0x2000 + (address & 0x0007))
	case address == 0x4015:
		value = b.APU.ReadStatus()
	case address == 0x4016 || address == 0x4017:
		value = b.Input.Read(address)
	case address < 0x4020:
		value = b.openBus
	case address >= 0x6000 && address < 0x8000:
		if b.cart != nil {
			value = b.cart.ReadPRG(address)
		} else {
			value = b.openBus
		}
	case address < 0x8000:
		value = b.openBus
	default:
		if b.cart != nil {
			value = b.cart.ReadPRG(address)
		} else {
			value = b.openBus
		}
	}
	return value
}

func (b *Bus) dispatchWrite(address uint16, value uint8) {
	switch {
	case address < 0x2000:
		b.ram[address&0x07FF] = value
	case address < 0x4000:
		b.PPU.WriteRegister(0x2000+(address&0x0007), value)
	case address == 0x4014:
		b.startOAMDMA(value)
	case address == 0x4016:
		b.Input.Write(address, value)
	case address >= 0x4000 && address <= 0x4013, address == 0x4015, address == 0x4017:
		b.APU.WriteRegister(address, value)
	case address < 0x6000:
		// expansion area / test registers: no device responds
	case address < 0x8000:
		if b.cart != nil {
			b.cart.WritePRG(address, value)
		}
	default:
		if b.cart != nil {
			b.cart.WritePRG(address, value)
		}
	}
}

// startOAMDMA performs the 256-byte OAM transfer, ticking the bus once per
// source byte (so PPU/APU/mapper IRQ timing advances correctly during it),
// then stalls the CPU for the fixed alignment overhead: 513 cycles, plus
// one more if the write landed on an odd CPU cycle.
func (b *Bus) startOAMDMA(page uint8) {
	base := uint16(page) << 8
	for i := uint16(0); i < 256; i++ {
		value := b.dispatchRead(base + i)
		b.PPU.WriteOAM(uint8(i), value)
		b.accessCount++
		b.tick()
	}
	extra := uint64(0)
	if b.totalCycles%2 == 1 {
		extra = 1
	}
	b.CPU.Stall(513 - 256 + extra)
}

// readDMC is wired into the APU as its DMA-read callback; the APU has
// already requested the stall cycles via SetDMAStallCallback, so this does
// a raw (non-ticking) read to avoid double-counting.
func (b *Bus) readDMC(address uint16) uint8 {
	return b.rawRead(address)
}

// Step executes exactly one CPU instruction (or stalled cycle group),
// ticking the bus for every memory access the instruction made and then
// flushing any cycle deficit so PPU/APU advance in lockstep with the CPU's
// total cycle count even for instructions whose cycle count exceeds their
// access count (e.g. single-byte NOPs, stalls).
func (b *Bus) Step() uint64 {
	b.accessCount = 0
	cycles := b.CPU.Step()
	for b.accessCount < cycles {
		b.tick()
		b.accessCount++
	}
	return cycles
}

// RunFrame steps the bus until the PPU reports a completed frame.
func (b *Bus) RunFrame() {
	b.frameReady = false
	for !b.frameReady {
		b.Step()
	}
}

// RunCycles steps the bus for at least the given number of CPU cycles.
func (b *Bus) RunCycles(cycles uint64) {
	var ran uint64
	for ran < cycles {
		ran += b.Step()
	}
}

// GetFrameBuffer returns the PPU's current frame buffer.
func (b *Bus) GetFrameBuffer() [256 * 240]uint32 { return b.PPU.GetFrameBuffer() }

// GetAudioSamples drains the APU's pending audio sample buffer.
func (b *Bus) GetAudioSamples() []float32 { return b.APU.GetSamples() }

// GetCycleCount returns the total number of CPU cycles executed.
func (b *Bus) GetCycleCount() uint64 { return b.totalCycles }

// GetFrameCount returns the PPU's frame counter.
func (b *Bus) GetFrameCount() uint64 { return b.PPU.GetFrameCount() }

// SetControllerButtons sets all button states for one controller (1 or 2).
func (b *Bus) SetControllerButtons(controller int, buttons [8]bool) {
	if controller == 1 {
		b.Input.SetButtons1(buttons)
	} else {
		b.Input.SetButtons2(buttons)
	}
}
