// Package deck implements ControlDeck, the top-level orchestrator that
// owns a Bus and exposes the single-threaded, synchronous surface a
// frontend drives: load a ROM, clock frames, read back the framebuffer
// and audio samples, push input, and save/restore state.
package deck

import (
	"errors"
	"fmt"
	"io"
	"math"

	"nesdeck/internal/bus"
	"nesdeck/internal/cartridge"
	"nesdeck/internal/input"
)

// cpuFrequencyNTSC is the NES CPU clock in Hz, used to convert
// ClockSeconds into a cycle budget.
const cpuFrequencyNTSC = 1789773.0

// ResetKind distinguishes a soft reset (reset line, RAM preserved) from a
// hard reset (full power cycle).
type ResetKind int

const (
	ResetSoft ResetKind = iota
	ResetHard
)

// Sentinel error categories. Concrete failures are wrapped with
// fmt.Errorf("...: %w", ...) so callers can still match with errors.Is.
var (
	// ErrRomLoad covers invalid magic, truncated files, unsupported
	// mapper numbers, and corrupt NES 2.0 fields. The deck is left in
	// its previous state (or unloaded, if this was the first load).
	ErrRomLoad = errors.New("deck: rom load failed")

	// ErrSaveState covers invalid header magic, version mismatch,
	// deflate failure, or a malformed serialized snapshot. The deck's
	// state is left exactly as it was before LoadState was called.
	ErrSaveState = errors.New("deck: save state load failed")

	// ErrInput covers out-of-range save slots and malformed Game Genie
	// codes. No deck state changes when this is returned.
	ErrInput = errors.New("deck: invalid input")

	// ErrNoCartridge is returned by operations that require a loaded
	// ROM (clocking, save state, sram access) when none is loaded.
	ErrNoCartridge = errors.New("deck: no cartridge loaded")
)

// ControlDeck wires CPU, PPU, APU, cartridge, and input into the single
// object a frontend talks to. Everything it owns is single-threaded and
// synchronous: one call to ClockFrame runs to completion on the caller's
// goroutine with no internal suspension.
type ControlDeck struct {
	bus     *bus.Bus
	cart    *cartridge.Cartridge
	romName string

	zapper *input.Zapper

	replay *Replay
}

// New creates a ControlDeck with no cartridge loaded.
func New() *ControlDeck {
	return &ControlDeck{bus: bus.New()}
}

// LoadROM parses an iNES/NES 2.0 image from r, constructs a Cartridge and
// its Mapper, wires it onto the bus, and resets. On failure the deck
// keeps whatever cartridge (or lack of one) it had before the call.
func (d *ControlDeck) LoadROM(name string, r io.Reader) error {
	cart, err := cartridge.LoadFromReader(r)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRomLoad, name, err)
	}
	d.cart = cart
	d.romName = name
	d.bus.LoadCartridge(cart)
	return nil
}

// ROMName returns the name LoadROM was called with, or "" if no
// cartridge is loaded.
func (d *ControlDeck) ROMName() string { return d.romName }

// UnloadROM detaches the current cartridge. The bus keeps running against
// open-bus reads until a new cartridge is loaded.
func (d *ControlDeck) UnloadROM() {
	d.cart = nil
	d.romName = ""
	d.bus.UnloadCartridge()
}

// Reset resets the CPU/PPU/APU/input. Soft and hard resets are identical
// at this layer (the bus does not model work-RAM retention vs scrubbing);
// the distinction exists for the frontend and replay event log.
func (d *ControlDeck) Reset(kind ResetKind) {
	d.bus.Reset()
}

// ClockFrame runs the bus until the PPU reports a completed frame and
// returns the number of CPU cycles that took.
func (d *ControlDeck) ClockFrame() uint64 {
	before := d.bus.GetCycleCount()
	d.bus.RunFrame()
	return d.bus.GetCycleCount() - before
}

// ClockSeconds runs the bus for approximately s seconds of emulated NES
// time (NTSC CPU clock), rounding up to a whole number of CPU cycles.
func (d *ControlDeck) ClockSeconds(s float64) {
	cycles := uint64(math.Ceil(s * cpuFrequencyNTSC))
	d.bus.RunCycles(cycles)
}

// ClockInstruction executes exactly one CPU instruction, for debuggers
// that want finer granularity than a whole frame.
func (d *ControlDeck) ClockInstruction() uint64 {
	return d.bus.Step()
}

// CycleCount returns the total number of CPU cycles executed since the
// last reset, for callers (replay verification, profiling) that need to
// compare execution progress across two decks running the same ROM.
func (d *ControlDeck) CycleCount() uint64 {
	return d.bus.GetCycleCount()
}

// FrameBuffer returns the latest completed frame as packed RGBA bytes,
// 256x240x4, row-major, alpha always opaque.
func (d *ControlDeck) FrameBuffer() []byte {
	pixels := d.bus.GetFrameBuffer()
	out := make([]byte, len(pixels)*4)
	for i, p := range pixels {
		out[i*4+0] = uint8(p >> 16)
		out[i*4+1] = uint8(p >> 8)
		out[i*4+2] = uint8(p)
		out[i*4+3] = 0xFF
	}
	return out
}

// AudioSamples returns the pending audio sample queue without clearing it.
func (d *ControlDeck) AudioSamples() []float32 {
	return d.bus.APU.GetSamples()
}

// ClearAudioSamples discards any buffered audio samples.
func (d *ControlDeck) ClearAudioSamples() {
	d.bus.APU.ClearSamples()
}

// JoypadMut returns the input.Controller for the given player (1 or 2),
// so the frontend can set button state directly before the next
// ClockFrame.
func (d *ControlDeck) JoypadMut(player int) *input.Controller {
	if player == 2 {
		return d.bus.Input.Controller2
	}
	return d.bus.Input.Controller1
}

// AttachZapper installs a zapper on port 2 (displacing Controller2 reads)
// and returns it so the frontend can aim/trigger it directly.
func (d *ControlDeck) AttachZapper() *input.Zapper {
	d.zapper = input.NewZapper()
	d.bus.Input.AttachZapper(d.zapper)
	return d.zapper
}

// DetachZapper removes the zapper, returning port 2 to Controller2.
func (d *ControlDeck) DetachZapper() {
	d.zapper = nil
	d.bus.Input.DetachZapper()
}

// ZapperAim points the attached zapper at a screen coordinate in 256x240
// space. A no-op if no zapper is attached.
func (d *ControlDeck) ZapperAim(x, y int) {
	if d.zapper != nil {
		d.zapper.Aim(x, y)
	}
}

// ZapperTrigger sets the attached zapper's trigger state. A no-op if no
// zapper is attached.
func (d *ControlDeck) ZapperTrigger(pressed bool) {
	if d.zapper != nil {
		d.zapper.Trigger(pressed)
	}
}

// CartBatteryBacked reports whether the loaded cartridge has
// battery-backed PRG-RAM worth persisting between sessions.
func (d *ControlDeck) CartBatteryBacked() bool {
	if d.cart == nil {
		return false
	}
	return d.cart.HasBattery()
}

// SRAM returns the cartridge's PRG-RAM bytes for the frontend to persist.
func (d *ControlDeck) SRAM() ([]byte, error) {
	if d.cart == nil {
		return nil, ErrNoCartridge
	}
	return d.cart.SRAM(), nil
}

// LoadSRAM restores previously-saved PRG-RAM bytes into the loaded
// cartridge.
func (d *ControlDeck) LoadSRAM(data []byte) error {
	if d.cart == nil {
		return ErrNoCartridge
	}
	d.cart.LoadSRAM(data)
	return nil
}

// AddGenieCode decodes and installs a Game Genie code against the loaded
// cartridge.
func (d *ControlDeck) AddGenieCode(code string) error {
	if d.cart == nil {
		return ErrNoCartridge
	}
	if err := d.cart.AddGenieCode(code); err != nil {
		return fmt.Errorf("%w: %v", ErrInput, err)
	}
	return nil
}

// RemoveGenieCode uninstalls a previously-added Game Genie code.
func (d *ControlDeck) RemoveGenieCode(code string) error {
	if d.cart == nil {
		return ErrNoCartridge
	}
	if err := d.cart.RemoveGenieCode(code); err != nil {
		return fmt.Errorf("%w: %v", ErrInput, err)
	}
	return nil
}
