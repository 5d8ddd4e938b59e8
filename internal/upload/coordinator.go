// Package upload sends acquired images to the remote analyzer and records
// the outcome on the ledger entry that was created for them.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/lehigh-university-libraries/wardrobe/internal/ledger"
	"github.com/lehigh-university-libraries/wardrobe/internal/models"
)

// FormField is the multipart field carrying the photo.
const FormField = "photo"

// maxErrorBody caps how much of a failed response is kept as the message.
const maxErrorBody = 4 * 1024

// Resolver is the part of the ledger the coordinator writes to.
type Resolver interface {
	Resolve(h ledger.Handle, result models.AnalysisResult) error
	ResolveFailure(h ledger.Handle, message string) error
}

// Task is one submission. It settles exactly once.
type Task struct {
	Handle ledger.Handle

	done   chan struct{}
	result *models.AnalysisResult
	err    error
}

// Done is closed after the ledger entry has been resolved.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the upload failure, or nil on success. Valid after Done.
func (t *Task) Err() error {
	<-t.done
	return t.err
}

// Result returns the analysis, or nil on failure. Valid after Done.
func (t *Task) Result() *models.AnalysisResult {
	<-t.done
	return t.result
}

type Option func(*Coordinator)

func WithHTTPClient(c *http.Client) Option {
	return func(co *Coordinator) {
		co.client = c
	}
}

func WithOpener(o Opener) Option {
	return func(co *Coordinator) {
		co.opener = o
	}
}

// WithTimeout bounds a single analyzer request. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(co *Coordinator) {
		co.timeout = d
	}
}

// Coordinator runs every submission in its own goroutine.
type Coordinator struct {
	baseURL string
	ledger  Resolver
	client  *http.Client
	opener  Opener
	timeout time.Duration

	mu    sync.Mutex
	tasks map[ledger.Handle]*Task
	// inFlight counts tasks that have not settled
	inFlight int
}

func New(baseURL string, l Resolver, opts ...Option) *Coordinator {
	c := &Coordinator{
		baseURL: strings.TrimRight(baseURL, "/"),
		ledger:  l,
		client:  &http.Client{},
		tasks:   make(map[ledger.Handle]*Task),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.opener == nil {
		c.opener = &LocatorOpener{HTTPClient: c.client}
	}
	return c
}

// Endpoint is the analyzer URL submissions are posted to.
func (c *Coordinator) Endpoint() string {
	return c.baseURL + "/analyze"
}

// Submit starts the upload for h and returns immediately. Submitting a
// handle twice returns the first task without sending anything.
func (c *Coordinator) Submit(ctx context.Context, h ledger.Handle, image models.ImageDescriptor) *Task {
	c.mu.Lock()
	if t, ok := c.tasks[h]; ok {
		c.mu.Unlock()
		slog.Warn("Ignoring duplicate submission", "handle", h)
		return t
	}
	t := &Task{Handle: h, done: make(chan struct{})}
	c.tasks[h] = t
	c.inFlight++
	c.mu.Unlock()

	go c.run(ctx, t, image)
	return t
}

func (c *Coordinator) run(ctx context.Context, t *Task, image models.ImageDescriptor) {
	start := time.Now()

	result, err := c.analyze(ctx, image)
	if err != nil {
		var uerr *models.UploadError
		if !errors.As(err, &uerr) {
			uerr = &models.UploadError{Message: err.Error(), Cause: err}
		}
		t.err = uerr
		slog.Warn("Upload failed", "handle", t.Handle, "locator", image.Locator, "err", uerr.Message, "elapsed", time.Since(start))
		if lerr := c.ledger.ResolveFailure(t.Handle, uerr.Message); lerr != nil {
			slog.Error("Unable to record upload failure", "handle", t.Handle, "err", lerr)
		}
	} else {
		t.result = result
		slog.Info("Analysis received", "handle", t.Handle, "item", result.Item, "recommendations", len(result.Recommendations), "elapsed", time.Since(start))
		if lerr := c.ledger.Resolve(t.Handle, *result); lerr != nil {
			slog.Error("Unable to record analysis", "handle", t.Handle, "err", lerr)
		}
	}

	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
	close(t.done)
}

func (c *Coordinator) analyze(ctx context.Context, image models.ImageDescriptor) (*models.AnalysisResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, contentType, err := c.buildForm(ctx, image)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), body)
	if err != nil {
		return nil, &models.UploadError{Message: "Invalid analyzer URL", Cause: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &models.UploadError{Message: networkMessage(err), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = fmt.Sprintf("Upload failed with status %d", resp.StatusCode)
		}
		return nil, &models.UploadError{Message: msg}
	}

	var result models.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &models.UploadError{Message: "Invalid response from analyzer", Cause: err}
	}
	if strings.TrimSpace(result.Item) == "" {
		return nil, &models.UploadError{Message: "Invalid response from analyzer: missing item"}
	}
	if result.Recommendations == nil {
		result.Recommendations = []string{}
	}
	return &result, nil
}

func (c *Coordinator) buildForm(ctx context.Context, image models.ImageDescriptor) (io.Reader, string, error) {
	src, err := c.opener.Open(ctx, image.Locator)
	if err != nil {
		return nil, "", &models.UploadError{Message: "Could not read image: " + err.Error(), Cause: err}
	}
	defer src.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FormField, escapeQuotes(image.DisplayName)))
	header.Set("Content-Type", image.MimeType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", &models.UploadError{Message: "Could not prepare upload", Cause: err}
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", &models.UploadError{Message: "Could not read image: " + err.Error(), Cause: err}
	}
	if err := w.Close(); err != nil {
		return nil, "", &models.UploadError{Message: "Could not prepare upload", Cause: err}
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"", "\r", "%0D", "\n", "%0A")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func networkMessage(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error

	switch {
	case errors.Is(err, context.Canceled):
		return "Network error: request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Network error: analyzer did not respond in time"
	case errors.As(err, &dnsErr):
		return "Network error: analyzer host could not be resolved"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "Network error: could not connect to analyzer"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "Network error: analyzer did not respond in time"
	default:
		return "Network error: could not reach analyzer"
	}
}

// Wait blocks until every task submitted before the call has settled, or
// ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	pending := make([]*Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		pending = append(pending, t)
	}
	c.mu.Unlock()

	for _, t := range pending {
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// InFlight returns the number of submissions still waiting on the analyzer.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}
