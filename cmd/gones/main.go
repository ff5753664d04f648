// Command gones runs the NES emulation core against an ebiten window, or
// inspects/exercises a ROM image headlessly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nesdeck/internal/cartridge"
	"nesdeck/internal/deck"
	"nesdeck/internal/version"
)

const targetFPS = 60

var rootCmd = &cobra.Command{
	Use:   "gones",
	Short: "A cycle-accurate NES emulator",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		version.PrintBuildInfo()
	},
}

var runCmd = &cobra.Command{
	Use:   "run <rom-file>",
	Short: "Run a ROM in an ebiten window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runROM(args[0])
	},
}

var romInfoCmd = &cobra.Command{
	Use:   "rom-info <rom-file>",
	Short: "Print an iNES/NES 2.0 header's fields without running the ROM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printROMInfo(args[0])
	},
}

var replayFrames int

var replayCmd = &cobra.Command{
	Use:   "replay <rom-file>",
	Short: "Record an input-free replay for a ROM and verify it reapplies cleanly",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplayDemo(args[0], replayFrames)
	},
}

func init() {
	replayCmd.Flags().IntVar(&replayFrames, "frames", 120, "number of frames to record")
	rootCmd.AddCommand(runCmd, romInfoCmd, replayCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gones:", err)
		os.Exit(1)
	}
}

// runROM loads rom into a fresh ControlDeck and drives it from an
// ebiten.RunGame window. The emulation itself runs on a dedicated
// goroutine, ticking at targetFPS and publishing completed frames into a
// mutex-guarded double buffer; the render loop (ebiten's own goroutine)
// only ever reads that buffer. This is the one place in the program a
// goroutine appears outside of internal package tests.
func runROM(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("gones: %w", err)
	}
	defer f.Close()

	d := deck.New()
	if err := d.LoadROM(path, f); err != nil {
		return fmt.Errorf("gones: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	swap := &frameSwap{}
	g := newGame(d, swap)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return emulationLoop(gctx, d, swap, g.quitCh)
	})

	ebiten.SetWindowSize(nesWidth*3, nesHeight*3)
	ebiten.SetWindowTitle("gones - " + path)
	runErr := ebiten.RunGame(g)

	stop()
	if waitErr := group.Wait(); waitErr != nil && runErr == nil {
		runErr = waitErr
	}
	if runErr != nil && runErr != ebiten.Termination {
		return fmt.Errorf("gones: %w", runErr)
	}
	return nil
}

// emulationLoop clocks one NES frame per tick of a real-time ticker and
// publishes it to swap. It never touches the ebiten.Image the render
// loop draws; frameSwap.store/load is the only shared state.
func emulationLoop(ctx context.Context, d *deck.ControlDeck, swap *frameSwap, quit <-chan struct{}) error {
	ticker := time.NewTicker(time.Second / targetFPS)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-quit:
			return nil
		case <-ticker.C:
			d.ClockFrame()
			swap.store(d.FrameBuffer())
		}
	}
}

func printROMInfo(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("gones: %w", err)
	}
	defer f.Close()

	cart, err := cartridge.LoadFromReader(f)
	if err != nil {
		return fmt.Errorf("gones: %w", err)
	}

	fmt.Printf("mapper:      %d (submapper %d)\n", cart.MapperID(), cart.SubmapperID())
	fmt.Printf("prg banks:   %d (16 KiB each)\n", cart.PRGBanks())
	if cart.HasCHRRAM() {
		fmt.Println("chr:         RAM")
	} else {
		fmt.Printf("chr banks:   %d (8 KiB each)\n", cart.CHRBanks())
	}
	fmt.Printf("mirroring:   %s\n", mirrorName(cart.Mirroring()))
	fmt.Printf("region:      %s\n", regionName(cart.Region()))
	fmt.Printf("battery:     %t\n", cart.HasBattery())
	return nil
}

func mirrorName(m cartridge.MirrorMode) string {
	switch m {
	case cartridge.MirrorHorizontal:
		return "horizontal"
	case cartridge.MirrorVertical:
		return "vertical"
	case cartridge.MirrorSingleScreen0:
		return "single-screen (0)"
	case cartridge.MirrorSingleScreen1:
		return "single-screen (1)"
	case cartridge.MirrorFourScreen:
		return "four-screen"
	default:
		return "unknown"
	}
}

func regionName(r cartridge.Region) string {
	switch r {
	case cartridge.RegionNTSC:
		return "NTSC"
	case cartridge.RegionPAL:
		return "PAL"
	case cartridge.RegionDendy:
		return "Dendy"
	default:
		return "unknown"
	}
}

// runReplayDemo records n frames of a ROM running with no input events
// (a frontend would call RecordEvent here as the player presses buttons),
// then reloads the same ROM into a second deck and clocks it for the same
// number of frames, confirming both land on an identical cycle count.
// A Replay's on-disk wrapper format is out of scope; this exercises only
// ControlDeck's in-memory recording surface.
func runReplayDemo(path string, frames int) error {
	loadDeck := func() (*deck.ControlDeck, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("gones: %w", err)
		}
		defer f.Close()
		d := deck.New()
		if err := d.LoadROM(path, f); err != nil {
			return nil, fmt.Errorf("gones: %w", err)
		}
		return d, nil
	}

	recorder, err := loadDeck()
	if err != nil {
		return err
	}
	if _, err := recorder.RecordReplay(); err != nil {
		return fmt.Errorf("gones: %w", err)
	}
	for i := 0; i < frames; i++ {
		recorder.ClockFrame()
	}
	replay := recorder.StopReplay()

	player, err := loadDeck()
	if err != nil {
		return err
	}
	for i := 0; i < frames; i++ {
		player.ClockFrame()
	}

	fmt.Printf("recorded %d frames, %d input events\n", frames, len(replay.Events))
	fmt.Printf("recorder cycles: %d, replayed cycles: %d\n", recorder.CycleCount(), player.CycleCount())
	if recorder.CycleCount() != player.CycleCount() {
		return fmt.Errorf("gones: replay diverged: %d cycles recorded, %d replayed", recorder.CycleCount(), player.CycleCount())
	}
	return nil
}
