package apu

import (
	"encoding/binary"
	"io"
)

// SaveState writes every channel's register/timer/envelope state plus the
// frame sequencer. The pending-sample output queue and the bus-supplied
// DMA callbacks are not state; the caller reattaches callbacks after
// LoadState and the queue simply continues accumulating from empty.
func (apu *APU) SaveState(w io.Writer) error {
	fields := []any{
		apu.pulse1, apu.pulse2, apu.triangle, apu.noise, apu.dmc,
		apu.frameCounter, apu.frameMode, apu.frameIRQEnable, apu.frameCounterStep, apu.frameIRQFlag,
		apu.channelEnable,
		int32(apu.sampleRate), apu.cpuFrequency, apu.cycleAccumulator,
		apu.cycles,
		apu.pendingFrameWrite, apu.pendingFrameValue, apu.pendingFrameDelay,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

// LoadState restores state written by SaveState, in the same field order.
func (apu *APU) LoadState(r io.Reader) error {
	var sampleRate32 int32
	fields := []any{
		&apu.pulse1, &apu.pulse2, &apu.triangle, &apu.noise, &apu.dmc,
		&apu.frameCounter, &apu.frameMode, &apu.frameIRQEnable, &apu.frameCounterStep, &apu.frameIRQFlag,
		&apu.channelEnable,
		&sampleRate32, &apu.cpuFrequency, &apu.cycleAccumulator,
		&apu.cycles,
		&apu.pendingFrameWrite, &apu.pendingFrameValue, &apu.pendingFrameDelay,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	apu.sampleRate = int(sampleRate32)
	apu.sampleBuffer = apu.sampleBuffer[:0]
	return nil
}
