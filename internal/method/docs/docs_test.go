package docs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/padbridge/padbridge/internal/method"
	"github.com/padbridge/padbridge/internal/method/evdev"
	"github.com/padbridge/padbridge/internal/method/joydev"
	"github.com/padbridge/padbridge/internal/method/rawhid"
	"github.com/padbridge/padbridge/internal/method/xusb"
	"github.com/padbridge/padbridge/pad"
)

func TestEveryMethodHasAPage(t *testing.T) {
	pages, err := Load()
	require.NoError(t, err)
	require.Len(t, pages, len(pad.Methods()))

	for _, m := range pad.Methods() {
		page, ok := pages[m]
		require.True(t, ok, "missing page for %s", m)
		assert.Equal(t, m, page.Method)
		assert.NotEmpty(t, page.Title)
		assert.NotEmpty(t, page.Body)
		assert.False(t, strings.HasPrefix(page.Body, "---"),
			"frontmatter leaked into body for %s", m)
	}
}

// The embedded pages promise the same capabilities the processors
// enforce. A mismatch here means one of the two was edited alone.
func TestFrontmatterMatchesCapabilities(t *testing.T) {
	log := zap.NewNop()
	processors := []method.Processor{
		joydev.New(log),
		xusb.New(log),
		evdev.New(log),
		rawhid.New(log),
	}

	for _, p := range processors {
		p := p
		t.Run(string(p.Method()), func(t *testing.T) {
			page, err := Get(p.Method())
			require.NoError(t, err)

			got, err := page.Caps()
			require.NoError(t, err)
			assert.Equal(t, p.Caps(), got)
		})
	}
}

func TestGetUnknownMethod(t *testing.T) {
	_, err := Get(pad.InputMethod("serial"))
	require.Error(t, err)
}

func TestCapsRejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name string
		page Page
	}{
		{"background", Page{Background: "sometimes", Triggers: "shared", Rumble: "none"}},
		{"triggers", Page{Background: "always", Triggers: "mixed", Rumble: "none"}},
		{"rumble", Page{Background: "always", Triggers: "shared", Rumble: "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.page.Caps()
			require.Error(t, err)
		})
	}
}
