package deck

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"nesdeck/internal/bus"
)

// saveStateMagic identifies a deck save-state file, named for the Rust
// NES emulator this format was ported from.
var saveStateMagic = [8]byte{'T', 'E', 'T', 'A', 'N', 'E', 'S', 0x1A}

// saveStateVersion is the one-byte format version following the magic.
// Bump it whenever a serialized component's field order changes.
const saveStateVersion = 1

// SaveState writes the entire CPU/PPU/APU/mapper state and the
// cartridge's writable memory to w: an 8-byte magic, a 1-byte version,
// then a deflate-compressed binary snapshot.
func (d *ControlDeck) SaveState(w io.Writer) error {
	if d.cart == nil {
		return ErrNoCartridge
	}
	if _, err := w.Write(saveStateMagic[:]); err != nil {
		return err
	}
	if _, err := w.Write([]byte{saveStateVersion}); err != nil {
		return err
	}

	fw, err := flate.NewWriter(w, flate.DefaultCompression)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveState, err)
	}
	if err := d.bus.SaveState(fw); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveState, err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveState, err)
	}
	return nil
}

// LoadState restores state written by SaveState. r must be positioned at
// a state produced against the same cartridge image currently loaded; on
// any failure (bad magic, version mismatch, corrupt payload) the deck's
// state is left exactly as it was before the call.
func (d *ControlDeck) LoadState(r io.Reader) error {
	if d.cart == nil {
		return ErrNoCartridge
	}

	var header [9]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("%w: truncated header: %v", ErrSaveState, err)
	}
	if !bytes.Equal(header[:8], saveStateMagic[:]) {
		return fmt.Errorf("%w: bad magic", ErrSaveState)
	}
	if header[8] != saveStateVersion {
		return fmt.Errorf("%w: version %d unsupported (want %d)", ErrSaveState, header[8], saveStateVersion)
	}

	fr := flate.NewReader(r)
	defer fr.Close()

	payload, err := io.ReadAll(fr)
	if err != nil {
		return fmt.Errorf("%w: deflate: %v", ErrSaveState, err)
	}

	// Decode into a scratch bus first so a corrupt payload never leaves
	// the live deck half-restored; only swap state in on full success.
	// The cartridge is shared with the live bus, so its state is backed
	// up and put back if decoding fails.
	var cartBackup bytes.Buffer
	if err := d.cart.SaveState(&cartBackup); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveState, err)
	}
	snapshot := bus.New()
	snapshot.LoadCartridge(d.cart)
	if err := snapshot.LoadState(bytes.NewReader(payload)); err != nil {
		if rerr := d.cart.LoadState(&cartBackup); rerr != nil {
			return fmt.Errorf("%w: %v (cartridge restore: %v)", ErrSaveState, err, rerr)
		}
		return fmt.Errorf("%w: %v", ErrSaveState, err)
	}

	d.bus = snapshot
	if d.zapper != nil {
		d.bus.Input.AttachZapper(d.zapper)
	}
	return nil
}
