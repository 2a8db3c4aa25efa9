package agentcli

import (
	"context"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/ghodss/yaml"
	"github.com/psanford/uhid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/padbridge/padbridge/pkg/agent"
)

//go:embed fixtures/*.yml
var fixturesFS embed.FS

// Fixture describes a virtual device: its HID identity, report
// descriptor, and the input frames to replay. Descriptor and frames
// are hex, whitespace ignored.
type Fixture struct {
	Name       string         `json:"name"`
	VendorID   uint16         `json:"vendorId"`
	ProductID  uint16         `json:"productId"`
	Descriptor string         `json:"descriptor"`
	Interval   agent.Duration `json:"interval,omitempty"`
	Loop       bool           `json:"loop,omitempty"`
	Frames     []string       `json:"frames"`
}

func NewSimulate() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate <fixture>",
		Short: "Run a virtual device",
		Long: `Creates a uhid gamepad from a fixture (a built-in name or a YAML file)
and replays its report frames until interrupted. The device goes through
the kernel's normal HID paths, so enumeration, validation, acquisition,
and parsing can be exercised without hardware.

Built-in fixtures: generic, xbox.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture, err := loadFixture(args[0])
			if err != nil {
				return err
			}
			logger, err := agent.NewLogger()
			if err != nil {
				return err
			}
			return runSimulation(cmd.Context(), logger.Named("simulate"), fixture)
		},
	}
}

// loadFixture reads a fixture file from disk, falling back to the
// built-in set when no such file exists.
func loadFixture(name string) (Fixture, error) {
	data, err := os.ReadFile(name)
	if errors.Is(err, os.ErrNotExist) {
		data, err = fixturesFS.ReadFile("fixtures/" + name + ".yml")
		if err != nil {
			return Fixture{}, fmt.Errorf("no fixture %q on disk or built in", name)
		}
	} else if err != nil {
		return Fixture{}, err
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("failed to parse fixture %s: %w", name, err)
	}
	if f.Descriptor == "" {
		return Fixture{}, fmt.Errorf("fixture %q has no report descriptor", name)
	}
	if len(f.Frames) == 0 {
		return Fixture{}, fmt.Errorf("fixture %q has no frames", name)
	}
	return f, nil
}

func runSimulation(ctx context.Context, log *zap.Logger, fixture Fixture) error {
	descriptor, err := parseHex(fixture.Descriptor)
	if err != nil {
		return fmt.Errorf("invalid descriptor hex: %w", err)
	}
	frames := make([][]byte, len(fixture.Frames))
	for i, frame := range fixture.Frames {
		if frames[i], err = parseHex(frame); err != nil {
			return fmt.Errorf("invalid frame %d: %w", i, err)
		}
	}

	dev, err := uhid.NewDevice(fixture.Name, descriptor)
	if err != nil {
		return fmt.Errorf("failed to create uhid device: %w", err)
	}
	dev.Data.Bus = 0x03
	dev.Data.VendorID = uint32(fixture.VendorID)
	dev.Data.ProductID = uint32(fixture.ProductID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := dev.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open uhid device: %w", err)
	}
	defer dev.Close()
	log.Info("Virtual device up",
		zap.String("name", fixture.Name),
		zap.String("identity", fmt.Sprintf("%04x:%04x", fixture.VendorID, fixture.ProductID)),
		zap.Int("frames", len(frames)))

	interval := time.Duration(fixture.Interval)
	if interval <= 0 {
		interval = 8 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	next := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if ev.Type == uhid.Output {
				// Rumble and LED reports from the host side.
				log.Info("Output report", zap.String("data", hex.EncodeToString(ev.Data)))
			}
		case <-ticker.C:
			if err := dev.InjectEvent(frames[next]); err != nil {
				return fmt.Errorf("failed to inject frame %d: %w", next, err)
			}
			// Past the last frame the device holds its final state
			// unless the fixture loops.
			if next+1 < len(frames) {
				next++
			} else if fixture.Loop {
				next = 0
			}
		}
	}
}

func parseHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s))
}
