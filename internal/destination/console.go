package destination

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"aeroport/internal/payload"
)

// Console writes one line per payload: the kind followed by the JSON body.
type Console struct {
	name string
	mu   sync.Mutex
	w    io.Writer
}

// NewConsole returns a console destination writing to w.
func NewConsole(name string, w io.Writer) *Console {
	return &Console{name: name, w: w}
}

func newConsoleFromSettings(name string, settings map[string]string, _ Deps) (Destination, error) {
	switch setting(settings, "stream", "stdout") {
	case "stdout":
		return NewConsole(name, os.Stdout), nil
	case "stderr":
		return NewConsole(name, os.Stderr), nil
	default:
		return nil, fmt.Errorf("unsupported stream %q", settings["stream"])
	}
}

func (c *Console) Name() string { return c.name }

func (c *Console) Prepare(context.Context) error { return nil }

func (c *Console) Release(context.Context) error { return nil }

func (c *Console) ProcessPayload(_ context.Context, p *payload.Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.w, "%s %s\n", p.Kind(), data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}
