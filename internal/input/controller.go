// Package input implements controller handling for the NES.
package input

// Button represents NES controller buttons
type Button uint8

const (
	ButtonA Button = 1 << iota
	ButtonB
	ButtonSelect
	ButtonStart
	ButtonUp
	ButtonDown
	ButtonLeft
	ButtonRight
)

// Controller represents a standard NES controller, shifting out button
// state one bit per read while strobe is low.
type Controller struct {
	buttons uint8

	shiftRegister uint8
	strobe        bool

	buttonSnapshot uint8
	bitPosition    uint8
}

// New creates a new Controller instance
func New() *Controller {
	return &Controller{}
}

// SetButton sets the state of a single button.
func (c *Controller) SetButton(button Button, pressed bool) {
	if pressed {
		c.buttons |= uint8(button)
	} else {
		c.buttons &^= uint8(button)
	}
}

// SetButtons sets all button states at once, in NES order:
// A, B, Select, Start, Up, Down, Left, Right.
func (c *Controller) SetButtons(buttons [8]bool) {
	c.buttons = 0
	order := [8]Button{ButtonA, ButtonB, ButtonSelect, ButtonStart, ButtonUp, ButtonDown, ButtonLeft, ButtonRight}
	for i, pressed := range buttons {
		if pressed {
			c.buttons |= uint8(order[i])
		}
	}
}

// IsPressed returns true if the button is currently pressed.
func (c *Controller) IsPressed(button Button) bool {
	return (c.buttons & uint8(button)) != 0
}

// Write handles writes to the controller's strobe line.
func (c *Controller) Write(value uint8) {
	wasStrobe := c.strobe
	c.strobe = (value & 1) != 0

	if c.strobe || wasStrobe {
		c.buttonSnapshot = c.buttons
		c.shiftRegister = c.buttonSnapshot
		c.bitPosition = 0
	}
}

// Read shifts out the next button bit in bit 0; bit 6 always reads set.
// While strobe is held high the register continuously reloads, so every
// read returns button A as latched by the last strobe write. After eight
// reads the button bit is 0.
func (c *Controller) Read() uint8 {
	if c.strobe {
		c.bitPosition = 0
		return 0x40 | c.buttonSnapshot&1
	}

	var result uint8
	if c.bitPosition < 8 {
		result = c.shiftRegister & 1
		c.shiftRegister >>= 1
	}
	c.bitPosition++
	return 0x40 | result
}

// Reset clears the controller to its power-on state.
func (c *Controller) Reset() {
	c.buttons = 0
	c.shiftRegister = 0
	c.strobe = false
	c.buttonSnapshot = 0
	c.bitPosition = 0
}

// GetBitPosition returns the current shift position, for tests.
func (c *Controller) GetBitPosition() uint8 {
	return c.bitPosition
}

// InputState owns both controller ports. Port 2 may instead carry a
// Zapper; when Zapper is non-nil it answers $4017 reads in place of
// Controller2.
type InputState struct {
	Controller1 *Controller
	Controller2 *Controller
	Zapper      *Zapper
}

// NewInputState creates an InputState with two fresh controllers and no
// zapper attached.
func NewInputState() *InputState {
	return &InputState{
		Controller1: New(),
		Controller2: New(),
	}
}

// AttachZapper installs a zapper on port 2, displacing Controller2 reads.
func (is *InputState) AttachZapper(z *Zapper) {
	is.Zapper = z
}

// DetachZapper removes the zapper, returning port 2 to Controller2.
func (is *InputState) DetachZapper() {
	is.Zapper = nil
}

// Reset resets both controllers and the zapper, if attached.
func (is *InputState) Reset() {
	is.Controller1.Reset()
	is.Controller2.Reset()
	if is.Zapper != nil {
		is.Zapper.Reset()
	}
}

// SetButtons1 sets all button states for controller 1.
func (is *InputState) SetButtons1(buttons [8]bool) {
	is.Controller1.SetButtons(buttons)
}

// SetButtons2 sets all button states for controller 2.
func (is *InputState) SetButtons2(buttons [8]bool) {
	is.Controller2.SetButtons(buttons)
}

// Read reads from a controller port ($4016/$4017). On both ports bit 6
// reads set and bit 7 reads clear.
func (is *InputState) Read(address uint16) uint8 {
	switch address {
	case 0x4016:
		return is.Controller1.Read()
	case 0x4017:
		if is.Zapper != nil {
			return is.Zapper.Read() | 0x40
		}
		return is.Controller2.Read() | 0x40
	default:
		return 0
	}
}

// Write writes to the controller strobe port ($4016), which latches both
// controllers simultaneously.
func (is *InputState) Write(address uint16, value uint8) {
	if address == 0x4016 {
		is.Controller1.Write(value)
		is.Controller2.Write(value)
	}
}
