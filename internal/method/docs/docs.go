// Package docs ships the per-method reference pages embedded in the
// agent binary. Each page opens with a YAML frontmatter block that
// mirrors the method's capability table, so the CLI renders the same
// numbers the code enforces and a test keeps the two in sync.
package docs

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	meta "github.com/yuin/goldmark-meta"

	"github.com/padbridge/padbridge/internal/method"
	"github.com/padbridge/padbridge/pad"
)

//go:embed data/*.md
var dataFS embed.FS

// Page is one parsed method document.
type Page struct {
	Method     pad.InputMethod
	Title      string
	Cap        int
	Background string
	Triggers   string
	Guide      bool
	Rumble     string

	// Body is the markdown source below the frontmatter block.
	Body string
}

// Caps converts the frontmatter back into a capability table.
func (p Page) Caps() (method.Caps, error) {
	var c method.Caps
	c.DeviceCap = p.Cap
	switch p.Background {
	case "always":
		c.Background = method.BackgroundAlways
	case "never":
		c.Background = method.BackgroundNever
	case "advisory":
		c.Background = method.BackgroundAdvisory
	default:
		return c, fmt.Errorf("unknown background mode %q", p.Background)
	}
	switch p.Triggers {
	case "separate":
		c.SeparateTriggers = true
	case "shared":
		c.SeparateTriggers = false
	default:
		return c, fmt.Errorf("unknown trigger mode %q", p.Triggers)
	}
	c.GuideButton = p.Guide
	switch p.Rumble {
	case "none":
		c.Rumble = method.RumbleNone
	case "dual":
		c.Rumble = method.RumbleDual
	case "trigger":
		c.Rumble = method.RumbleTrigger
	case "profile":
		c.Rumble = method.RumbleProfile
	default:
		return c, fmt.Errorf("unknown rumble tier %q", p.Rumble)
	}
	return c, nil
}

var (
	loadOnce sync.Once
	loaded   map[pad.InputMethod]Page
	loadErr  error
)

// Load parses the embedded pages once and returns them keyed by
// method. The returned map is shared; callers do not mutate it.
func Load() (map[pad.InputMethod]Page, error) {
	loadOnce.Do(func() {
		loaded, loadErr = parseAll()
	})
	return loaded, loadErr
}

// Get returns the page for one method.
func Get(m pad.InputMethod) (Page, error) {
	pages, err := Load()
	if err != nil {
		return Page{}, err
	}
	page, ok := pages[m]
	if !ok {
		return Page{}, fmt.Errorf("no documentation page for method %q", m)
	}
	return page, nil
}

func parseAll() (map[pad.InputMethod]Page, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.Table,
			meta.Meta,
		),
	)
	out := make(map[pad.InputMethod]Page)
	err := fs.WalkDir(dataFS, "data", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		src, err := dataFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		page, err := parsePage(md, path, src)
		if err != nil {
			return err
		}
		if prev, dup := out[page.Method]; dup {
			return fmt.Errorf("method %q documented twice (%q and %q)", page.Method, prev.Title, page.Title)
		}
		out[page.Method] = page
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, m := range pad.Methods() {
		if _, ok := out[m]; !ok {
			return nil, fmt.Errorf("method %q has no documentation page", m)
		}
	}
	return out, nil
}

func parsePage(md goldmark.Markdown, path string, src []byte) (Page, error) {
	ctx := parser.NewContext()
	if err := md.Convert(src, &bytes.Buffer{}, parser.WithContext(ctx)); err != nil {
		return Page{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	fm := meta.Get(ctx)
	if fm == nil {
		return Page{}, fmt.Errorf("%s has no frontmatter block", path)
	}

	var page Page
	name, _ := fm["method"].(string)
	m, err := pad.ParseInputMethod(name)
	if err != nil {
		return Page{}, fmt.Errorf("%s: %w", path, err)
	}
	page.Method = m
	page.Title, _ = fm["title"].(string)
	if page.Title == "" {
		return Page{}, fmt.Errorf("%s has no title", path)
	}
	page.Cap, _ = fm["cap"].(int)
	page.Background, _ = fm["background"].(string)
	page.Triggers, _ = fm["triggers"].(string)
	page.Guide, _ = fm["guide"].(bool)
	page.Rumble, _ = fm["rumble"].(string)
	if _, err := page.Caps(); err != nil {
		return Page{}, fmt.Errorf("%s: %w", path, err)
	}
	page.Body = body(src)
	return page, nil
}

// body strips the frontmatter block from the raw source.
func body(src []byte) string {
	s := string(src)
	if !strings.HasPrefix(s, "---\n") {
		return strings.TrimSpace(s)
	}
	rest := s[len("---\n"):]
	idx := strings.Index(rest, "\n---\n")
	if idx < 0 {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(rest[idx+len("\n---\n"):])
}
