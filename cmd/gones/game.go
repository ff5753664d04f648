package main

import (
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"nesdeck/internal/deck"
	"nesdeck/internal/input"
)

const (
	nesWidth  = 256
	nesHeight = 240
)

// frameSwap is the mutex-guarded double buffer the emulation goroutine
// writes into and the render loop reads from; it is the only piece of
// shared state crossing a goroutine boundary in this program.
type frameSwap struct {
	mu    sync.Mutex
	front []byte
}

func (s *frameSwap) store(buf []byte) {
	s.mu.Lock()
	s.front = buf
	s.mu.Unlock()
}

func (s *frameSwap) load() []byte {
	s.mu.Lock()
	buf := s.front
	s.mu.Unlock()
	return buf
}

// keyMappings maps host keyboard keys to player 1's NES buttons. Arrow
// keys and WASD both drive the d-pad; J/K stand in for B/A.
var keyMappings = map[ebiten.Key]input.Button{
	ebiten.KeyArrowUp:    input.ButtonUp,
	ebiten.KeyArrowDown:  input.ButtonDown,
	ebiten.KeyArrowLeft:  input.ButtonLeft,
	ebiten.KeyArrowRight: input.ButtonRight,
	ebiten.KeyW:          input.ButtonUp,
	ebiten.KeyS:          input.ButtonDown,
	ebiten.KeyA:          input.ButtonLeft,
	ebiten.KeyD:          input.ButtonRight,
	ebiten.KeyJ:          input.ButtonB,
	ebiten.KeyK:          input.ButtonA,
	ebiten.KeyEnter:      input.ButtonStart,
	ebiten.KeySpace:      input.ButtonSelect,
}

// game implements ebiten.Game. It owns no emulation state of its own: it
// only reads the latest frame out of a frameSwap and forwards keyboard
// input to the deck's player-1 controller.
type game struct {
	deck   *deck.ControlDeck
	swap   *frameSwap
	image  *ebiten.Image
	quitCh chan struct{}
}

func newGame(d *deck.ControlDeck, swap *frameSwap) *game {
	return &game{
		deck:   d,
		swap:   swap,
		image:  ebiten.NewImage(nesWidth, nesHeight),
		quitCh: make(chan struct{}, 1),
	}
}

func (g *game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		select {
		case g.quitCh <- struct{}{}:
		default:
		}
		return ebiten.Termination
	}

	joypad := g.deck.JoypadMut(1)
	held := make(map[input.Button]bool, len(keyMappings))
	for key, button := range keyMappings {
		held[button] = held[button] || ebiten.IsKeyPressed(key)
	}
	for button, pressed := range held {
		joypad.SetButton(button, pressed)
	}
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(color.Black)

	buf := g.swap.load()
	if buf == nil {
		return
	}
	g.image.WritePixels(buf)

	op := &ebiten.DrawImageOptions{}
	bounds := screen.Bounds()
	scaleX := float64(bounds.Dx()) / nesWidth
	scaleY := float64(bounds.Dy()) / nesHeight
	scale := scaleX
	if scaleY < scale {
		scale = scaleY
	}
	offsetX := (float64(bounds.Dx()) - nesWidth*scale) / 2
	offsetY := (float64(bounds.Dy()) - nesHeight*scale) / 2
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(offsetX, offsetY)
	screen.DrawImage(g.image, op)
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}
