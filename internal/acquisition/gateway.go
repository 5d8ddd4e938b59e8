// Package acquisition obtains images from a named source after checking
// that the user allowed access to it.
package acquisition

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/lehigh-university-libraries/wardrobe/internal/models"
)

// Source names where an image comes from
type Source string

const (
	Camera  Source = "camera"
	Library Source = "library"
)

// ParseSource accepts "camera" or "library" in any case.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case Camera:
		return Camera, nil
	case Library:
		return Library, nil
	default:
		return "", fmt.Errorf("unknown image source: %q", s)
	}
}

// Permissions asks the platform whether a source may be used.
type Permissions interface {
	Request(ctx context.Context, source Source) (bool, error)
}

// Asset is what a picker hands back. Empty fields are filled with defaults.
type Asset struct {
	URI      string
	FileName string
	MimeType string
}

// Picker runs the capture or selection flow. A nil asset with a nil error
// means the user dismissed it without choosing.
type Picker interface {
	Pick(ctx context.Context) (*Asset, error)
}

// OutcomeKind enumerates how an acquisition ended
type OutcomeKind string

const (
	Acquired    OutcomeKind = "acquired"
	Denied      OutcomeKind = "denied"
	Cancelled   OutcomeKind = "cancelled"
	Unavailable OutcomeKind = "unavailable"
)

// Outcome is returned by Acquire; Image is set only when Kind is Acquired.
type Outcome struct {
	Kind   OutcomeKind
	Source Source
	Image  models.ImageDescriptor
	Reason string
}

// Err maps the outcome onto the error taxonomy, nil when an image was acquired.
func (o Outcome) Err() error {
	switch o.Kind {
	case Acquired:
		return nil
	case Denied:
		return models.ErrPermissionDenied
	case Cancelled:
		return models.ErrUserCancelled
	default:
		if o.Reason != "" {
			return fmt.Errorf("%w: %s", models.ErrSourceUnavailable, o.Reason)
		}
		return models.ErrSourceUnavailable
	}
}

// Gateway combines a permission subsystem with one picker per source.
type Gateway struct {
	permissions Permissions
	pickers     map[Source]Picker
}

func NewGateway(permissions Permissions, pickers map[Source]Picker) *Gateway {
	p := make(map[Source]Picker, len(pickers))
	for k, v := range pickers {
		p[k] = v
	}
	return &Gateway{permissions: permissions, pickers: p}
}

// Acquire never returns an error: every ending is an Outcome.
func (g *Gateway) Acquire(ctx context.Context, source Source) Outcome {
	if g.permissions == nil {
		return Outcome{Kind: Unavailable, Source: source, Reason: "no permission subsystem"}
	}
	granted, err := g.permissions.Request(ctx, source)
	if err != nil {
		slog.Warn("Permission check failed", "source", source, "err", err)
		return Outcome{Kind: Unavailable, Source: source, Reason: err.Error()}
	}
	if !granted {
		slog.Info("Image source access denied", "source", source)
		return Outcome{Kind: Denied, Source: source}
	}

	picker, ok := g.pickers[source]
	if !ok {
		return Outcome{Kind: Unavailable, Source: source, Reason: fmt.Sprintf("no %s available", source)}
	}

	asset, err := picker.Pick(ctx)
	if err != nil {
		slog.Warn("Image picker failed", "source", source, "err", err)
		return Outcome{Kind: Unavailable, Source: source, Reason: err.Error()}
	}
	if asset == nil {
		slog.Debug("Image selection cancelled", "source", source)
		return Outcome{Kind: Cancelled, Source: source}
	}

	img := Normalize(*asset)
	slog.Info("Image acquired", "source", source, "locator", img.Locator, "name", img.DisplayName, "type", img.MimeType)
	return Outcome{Kind: Acquired, Source: source, Image: img}
}

// Normalize turns a picker asset into an image descriptor.
func Normalize(a Asset) models.ImageDescriptor {
	name := strings.TrimSpace(a.FileName)
	if name == "" {
		name = baseName(a.URI)
	}
	if name == "" {
		name = models.DefaultDisplayName
	}

	mimeType := strings.TrimSpace(a.MimeType)
	if mimeType == "" {
		mimeType = models.DefaultMimeType
	}

	return models.ImageDescriptor{
		Locator:     a.URI,
		DisplayName: name,
		MimeType:    mimeType,
	}
}

func baseName(uri string) string {
	p := uri
	if u, err := url.Parse(uri); err == nil && u.Scheme != "" {
		p = u.Path
	}
	p = strings.ReplaceAll(p, "\\", "/")
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	return base
}
