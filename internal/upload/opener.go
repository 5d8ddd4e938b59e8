package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Opener returns the bytes referenced by an image locator.
type Opener interface {
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
}

// LocatorOpener reads plain paths, file:// URIs and http(s):// URLs.
type LocatorOpener struct {
	HTTPClient *http.Client
}

func (o *LocatorOpener) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	u, err := url.Parse(locator)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 { // "C:\..." parses with scheme "c"
		return openFile(locator)
	}

	switch u.Scheme {
	case "file":
		return openFile(filepath.FromSlash(u.Path))
	case "http", "https":
		return o.download(ctx, locator)
	default:
		return nil, fmt.Errorf("unsupported image locator scheme: %s", u.Scheme)
	}
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return f, nil
}

func (o *LocatorOpener) download(ctx context.Context, imageURL string) (io.ReadCloser, error) {
	client := o.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}
	return resp.Body, nil
}
