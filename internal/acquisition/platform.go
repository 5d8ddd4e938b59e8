package acquisition

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// StaticPermissions answers from a fixed grant table. Sources missing from
// the table are denied.
type StaticPermissions struct {
	mu      sync.Mutex
	grants  map[Source]bool
	history []Source
}

func NewStaticPermissions(grants map[Source]bool) *StaticPermissions {
	g := make(map[Source]bool, len(grants))
	for k, v := range grants {
		g[k] = v
	}
	return &StaticPermissions{grants: g}
}

func (p *StaticPermissions) Request(ctx context.Context, source Source) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, source)
	return p.grants[source], nil
}

// Requests returns the sources that were asked for, in order.
func (p *StaticPermissions) Requests() []Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Source, len(p.history))
	copy(out, p.history)
	return out
}

// FilePicker hands out queued file paths or URLs one per Pick. An empty
// entry, or an exhausted queue, is a cancelled selection.
type FilePicker struct {
	mu    sync.Mutex
	queue []string
}

func NewFilePicker(paths ...string) *FilePicker {
	q := make([]string, len(paths))
	copy(q, paths)
	return &FilePicker{queue: q}
}

// Push appends paths to the queue.
func (p *FilePicker) Push(paths ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, paths...)
}

func (p *FilePicker) Pick(ctx context.Context) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if len(p.queue) == 0 {
		p.mu.Unlock()
		return nil, nil
	}
	next := strings.TrimSpace(p.queue[0])
	p.queue = p.queue[1:]
	p.mu.Unlock()

	if next == "" {
		return nil, nil
	}

	if u, err := url.Parse(next); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return &Asset{
			URI:      next,
			MimeType: mime.TypeByExtension(strings.ToLower(filepath.Ext(u.Path))),
		}, nil
	}

	localPath := strings.TrimPrefix(next, "file://")
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve image path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("image path is a directory: %s", abs)
	}

	return &Asset{
		URI:      (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(),
		FileName: filepath.Base(abs),
		MimeType: mime.TypeByExtension(strings.ToLower(filepath.Ext(abs))),
	}, nil
}
