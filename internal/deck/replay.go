package deck

import (
	"bytes"

	"nesdeck/internal/input"
)

// EventKind identifies which field of ReplayEvent is meaningful.
type EventKind int

const (
	EventJoypad EventKind = iota
	EventZapperAim
	EventZapperTrigger
	EventReset
)

// ReplayEvent is one recorded input at a given frame. Only the fields
// relevant to Kind are populated; the zero value of the others is
// ignored.
type ReplayEvent struct {
	Frame uint64
	Kind  EventKind

	// EventJoypad
	Player  int
	Button  input.Button
	Pressed bool

	// EventZapperAim
	X, Y int

	// EventReset
	Reset ResetKind
}

// Replay is an in-memory recording: the full deck state (a SaveState
// snapshot) at the moment recording started, plus every input event that followed, each tagged with the
// frame it applies before. The on-disk wrapper format is the frontend's
// responsibility; this type only models what gets serialized.
type Replay struct {
	InitialState []byte // deck.SaveState snapshot taken at RecordReplay
	Events       []ReplayEvent
}

// RecordReplay starts recording: it captures the current deck state as
// the replay's baseline; the caller then feeds input through RecordEvent
// as it happens, before each frame it applies to.
func (d *ControlDeck) RecordReplay() (*Replay, error) {
	var buf bytes.Buffer
	if err := d.SaveState(&buf); err != nil {
		return nil, err
	}
	r := &Replay{InitialState: buf.Bytes()}
	d.replay = r
	return r, nil
}

// RecordEvent appends an event to the in-progress replay. A no-op if no
// replay is currently recording (RecordReplay wasn't called, or
// StopReplay already ended it).
func (d *ControlDeck) RecordEvent(ev ReplayEvent) {
	if d.replay != nil {
		d.replay.Events = append(d.replay.Events, ev)
	}
}

// StopReplay ends the in-progress recording and returns it.
func (d *ControlDeck) StopReplay() *Replay {
	r := d.replay
	d.replay = nil
	return r
}

// ApplyReplayEvent drives the deck as if the given event's input had just
// happened; the caller applies events for a frame before clocking it.
func (d *ControlDeck) ApplyReplayEvent(ev ReplayEvent) {
	switch ev.Kind {
	case EventJoypad:
		d.JoypadMut(ev.Player).SetButton(ev.Button, ev.Pressed)
	case EventZapperAim:
		d.ZapperAim(ev.X, ev.Y)
	case EventZapperTrigger:
		d.ZapperTrigger(ev.Pressed)
	case EventReset:
		d.Reset(ev.Reset)
	}
}
