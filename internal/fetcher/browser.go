package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultBrowserCommand = "chromium --headless --disable-gpu --blink-settings=imagesEnabled=false --dump-dom"
	DefaultMaxBrowsers    = 5
	defaultBrowserTimeout = 60 * time.Second
)

// Proxy is an upstream proxy for browser sessions.
type Proxy struct {
	Address string
	Type    string
}

// Renderer runs a browser command for url and returns the rendered DOM.
type Renderer interface {
	Render(ctx context.Context, args []string, url string) (string, error)
}

// ExecRenderer runs the browser as a child process and reads stdout.
type ExecRenderer struct{}

func (ExecRenderer) Render(ctx context.Context, args []string, url string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("empty browser command")
	}
	cmd := exec.CommandContext(ctx, args[0], append(args[1:], url)...) //nolint:gosec // command comes from settings
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("run %s: %w: %s", args[0], err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.String(), nil
}

// BrowserConfig configures the browser downloader.
type BrowserConfig struct {
	Command string
	Timeout time.Duration
	Proxies []Proxy
}

// Browser renders pages with an external headless browser. Concurrent
// browsers are limited by a semaphore that callers share process-wide.
type Browser struct {
	args     []string
	timeout  time.Duration
	proxies  []Proxy
	sem      *semaphore.Weighted
	renderer Renderer
	log      *slog.Logger
}

// NewBrowser parses cfg.Command and returns a downloader gated by sem.
func NewBrowser(cfg BrowserConfig, sem *semaphore.Weighted, renderer Renderer, log *slog.Logger) (*Browser, error) {
	command := cfg.Command
	if command == "" {
		command = DefaultBrowserCommand
	}
	args, err := shellquote.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse browser command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("parse browser command: empty")
	}
	if sem == nil {
		sem = semaphore.NewWeighted(DefaultMaxBrowsers)
	}
	if renderer == nil {
		renderer = ExecRenderer{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultBrowserTimeout
	}
	return &Browser{
		args:     args,
		timeout:  timeout,
		proxies:  cfg.Proxies,
		sem:      sem,
		renderer: renderer,
		log:      log.With("component", "browser"),
	}, nil
}

// Fetch waits for a browser slot and renders url.
func (b *Browser) Fetch(ctx context.Context, url string) (string, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire browser: %w", err)
	}
	defer b.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	b.log.Info("fetching", "url", url)
	html, err := b.renderer.Render(ctx, b.commandArgs(), url)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return html, nil
}

func (b *Browser) commandArgs() []string {
	args := append([]string(nil), b.args...)
	if len(b.proxies) > 0 {
		p := b.proxies[rand.IntN(len(b.proxies))]
		typ := p.Type
		if typ == "" {
			typ = "http"
		}
		args = append(args, fmt.Sprintf("--proxy-server=%s://%s", typ, p.Address))
	}
	return args
}
