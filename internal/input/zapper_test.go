package input

import "testing"

func TestNewZapper_ShouldCreateZapperWithDefaultState(t *testing.T) {
	z := NewZapper()

	if z == nil {
		t.Fatal("Expected zapper, got nil")
	}
	x, y := z.Position()
	if x != 0 || y != 0 {
		t.Errorf("Expected initial position (0,0), got (%d,%d)", x, y)
	}
	if z.Read() != 0x08 {
		t.Errorf("Expected initial read 0x08 (no light, no trigger), got %#02x", z.Read())
	}
}

func TestZapperAim_ShouldUpdatePosition(t *testing.T) {
	z := NewZapper()
	z.Aim(120, 64)

	x, y := z.Position()
	if x != 120 || y != 64 {
		t.Errorf("Position = (%d,%d), want (120,64)", x, y)
	}
}

func TestZapperTrigger_ShouldSetBit4(t *testing.T) {
	z := NewZapper()
	z.Trigger(true)

	if got := z.Read(); got&0x10 == 0 {
		t.Errorf("Read() = %#02x, want bit 4 set", got)
	}

	z.Trigger(false)
	if got := z.Read(); got&0x10 != 0 {
		t.Errorf("Read() = %#02x, want bit 4 clear", got)
	}
}

func TestZapperSense_ShouldClearLightBitWhenBright(t *testing.T) {
	z := NewZapper()

	z.Sense(true)
	if got := z.Read(); got&0x08 != 0 {
		t.Errorf("Read() = %#02x, want bit 3 clear when light detected", got)
	}

	z.Sense(false)
	if got := z.Read(); got&0x08 == 0 {
		t.Errorf("Read() = %#02x, want bit 3 set when no light", got)
	}
}

func TestZapperReset_ShouldClearAllState(t *testing.T) {
	z := NewZapper()
	z.Aim(200, 100)
	z.Trigger(true)
	z.Sense(true)

	z.Reset()

	x, y := z.Position()
	if x != 0 || y != 0 {
		t.Errorf("Position after reset = (%d,%d), want (0,0)", x, y)
	}
	if got := z.Read(); got != 0x08 {
		t.Errorf("Read() after reset = %#02x, want 0x08", got)
	}
}

func TestInputStateAttachZapper_ShouldReplacePort2Reads(t *testing.T) {
	is := NewInputState()
	is.SetButtons2([8]bool{true, false, false, false, false, false, false, false})
	is.Write(0x4016, 1) // strobe high latches both controllers

	z := NewZapper()
	z.Trigger(true)
	is.AttachZapper(z)

	got := is.Read(0x4017)
	if got&0x10 == 0 {
		t.Errorf("port 2 read = %#02x, want zapper trigger bit set", got)
	}

	is.DetachZapper()
	got = is.Read(0x4017)
	if got&1 == 0 {
		t.Errorf("port 2 read after detach = %#02x, want controller2 button A bit", got)
	}
}

func TestInputStateReset_ShouldResetAttachedZapper(t *testing.T) {
	is := NewInputState()
	z := NewZapper()
	z.Aim(50, 50)
	z.Trigger(true)
	is.AttachZapper(z)

	is.Reset()

	x, y := z.Position()
	if x != 0 || y != 0 {
		t.Errorf("zapper position after InputState.Reset = (%d,%d), want (0,0)", x, y)
	}
}
