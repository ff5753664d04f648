package bus

import (
	"testing"

	"nesdeck/internal/cartridge"
)

func loadProgram(cart *cartridge.MockCartridge, program ...uint8) {
	copy(cart.PRG[:], program)
	cart.PRG[0x7FFC] = 0x00
	cart.PRG[0x7FFD] = 0x80
}

// TestCPUPPU3To1SyncBasic validates the fundamental 3:1 CPU-PPU cycle ratio.
func TestCPUPPU3To1SyncBasic(t *testing.T) {
	bus := New()
	cart := cartridge.NewMockCartridge()
	loadProgram(cart, 0xEA, 0x4C, 0x00, 0x80) // NOP; JMP $8000
	bus.LoadCartridge(cart)

	initialCPU := bus.GetCycleCount()
	cycles := bus.Step() // NOP
	if cycles != 2 {
		t.Fatalf("expected NOP to take 2 cycles, got %d", cycles)
	}

	advanced := bus.GetCycleCount() - initialCPU
	if advanced != 2 {
		t.Errorf("expected bus cycle count to advance by 2, got %d", advanced)
	}
}

// TestCPUPPUSyncDuringDMA validates the bus keeps ticking PPU/APU through
// the CPU stall an OAM-DMA transfer imposes.
func TestCPUPPUSyncDuringDMA(t *testing.T) {
	bus := New()
	cart := cartridge.NewMockCartridge()
	loadProgram(cart,
		0xA9, 0x02, // LDA #$02
		0x8D, 0x14, 0x40, // STA $4014 -> triggers OAM DMA
		0xEA, // NOP
		0x4C, 0x00, 0x80, // JMP $8000
	)
	bus.LoadCartridge(cart)

	bus.Step() // LDA #$02
	before := bus.GetCycleCount()
	bus.Step() // STA $4014
	bus.Step() // DMA stall
	after := bus.GetCycleCount()

	// STA plus the 256-byte transfer and the rest of the 513-cycle stall,
	// +1 on an odd cycle; the stall is drained by the Step() after the STA.
	spent := after - before
	if spent < 513 || spent > 514+4 {
		t.Errorf("expected roughly 513-518 cycles for STA $4014 incl. DMA, got %d", spent)
	}
}

// TestCPUPPUSyncWithInterrupts validates the machine reaches an NMI handler
// when VBlank fires with NMI enabled.
func TestCPUPPUSyncWithInterrupts(t *testing.T) {
	bus := New()
	cart := cartridge.NewMockCartridge()
	loadProgram(cart, 0xEA, 0x4C, 0x00, 0x80) // NOP; JMP $8000
	cart.PRG[0x0100] = 0xEA                   // NMI handler: NOP
	cart.PRG[0x0101] = 0x40                   // RTI
	cart.PRG[0x7FFA] = 0x00
	cart.PRG[0x7FFB] = 0x81
	bus.LoadCartridge(cart)

	bus.PPU.WriteRegister(0x2000, 0x80) // enable NMI generation

	reached := false
	for step := 0; step < 200000; step++ {
		bus.Step()
		if bus.CPU.PC >= 0x8100 && bus.CPU.PC <= 0x8101 {
			reached = true
			break
		}
	}
	if !reached {
		t.Fatal("NMI handler was not reached within the step budget")
	}
}

// TestCPUPPUSyncPrecision validates that cycle counts accumulate exactly
// (no drift) across many instructions.
func TestCPUPPUSyncPrecision(t *testing.T) {
	bus := New()
	cart := cartridge.NewMockCartridge()
	loadProgram(cart, 0xEA, 0x4C, 0x00, 0x80) // NOP (2); JMP (3)
	bus.LoadCartridge(cart)

	iterations := 1000
	for i := 0; i < iterations*2; i++ {
		bus.Step()
	}

	expected := uint64((2 + 3) * iterations)
	if bus.GetCycleCount() != expected {
		t.Errorf("expected %d cycles after %d iterations, got %d", expected, iterations, bus.GetCycleCount())
	}
}
