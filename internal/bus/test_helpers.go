package bus

// SetFrameBufferForTesting injects a frame buffer directly into the PPU,
// bypassing rendering, for tests that assert on display output.
func (b *Bus) SetFrameBufferForTesting(frameBuffer [256 * 240]uint32) {
	b.PPU.SetFrameBufferForTesting(frameBuffer)
}

// StepWithError runs one CPU instruction and reports any error. The bus
// never produces an error on its own; this exists so tests written against
// an error-returning Step keep the same call shape.
func (b *Bus) StepWithError() error {
	b.Step()
	return nil
}
