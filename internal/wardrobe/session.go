// Package wardrobe wires acquisition, the entry ledger and the upload
// coordinator into the two actions a gallery surface offers: take a photo
// and pick a photo.
package wardrobe

import (
	"context"
	"log/slog"

	"github.com/lehigh-university-libraries/wardrobe/internal/acquisition"
	"github.com/lehigh-university-libraries/wardrobe/internal/ledger"
	"github.com/lehigh-university-libraries/wardrobe/internal/models"
	"github.com/lehigh-university-libraries/wardrobe/internal/upload"
)

// Acquirer is satisfied by *acquisition.Gateway.
type Acquirer interface {
	Acquire(ctx context.Context, source acquisition.Source) acquisition.Outcome
}

// Submitter is satisfied by *upload.Coordinator.
type Submitter interface {
	Submit(ctx context.Context, h ledger.Handle, image models.ImageDescriptor) *upload.Task
	Wait(ctx context.Context) error
}

// Result reports what an action did. Handle and Task are set only when an
// image was acquired.
type Result struct {
	Outcome acquisition.Outcome
	Handle  ledger.Handle
	Task    *upload.Task
}

// Err is the acquisition error, if any. Upload failures are reported on the
// ledger entry, not here.
func (r Result) Err() error {
	return r.Outcome.Err()
}

type Session struct {
	gateway     Acquirer
	ledger      *ledger.Ledger
	coordinator Submitter
}

func NewSession(gateway Acquirer, l *ledger.Ledger, coordinator Submitter) *Session {
	return &Session{gateway: gateway, ledger: l, coordinator: coordinator}
}

func (s *Session) Ledger() *ledger.Ledger {
	return s.ledger
}

func (s *Session) TakePhoto(ctx context.Context) Result {
	return s.Add(ctx, acquisition.Camera)
}

func (s *Session) PickPhoto(ctx context.Context) Result {
	return s.Add(ctx, acquisition.Library)
}

// Add acquires an image from source, inserts a pending entry for it and
// starts the upload. It returns once the upload has been started; the upload
// outlives ctx and is bounded only by the coordinator's timeout.
func (s *Session) Add(ctx context.Context, source acquisition.Source) Result {
	out := s.gateway.Acquire(ctx, source)
	if out.Kind != acquisition.Acquired {
		slog.Info("No entry added", "source", source, "outcome", out.Kind, "reason", out.Reason)
		return Result{Outcome: out}
	}

	h := s.ledger.InsertPending(out.Image)
	task := s.coordinator.Submit(context.WithoutCancel(ctx), h, out.Image)
	return Result{Outcome: out, Handle: h, Task: task}
}

// Wait blocks until all started uploads have resolved their entries.
func (s *Session) Wait(ctx context.Context) error {
	return s.coordinator.Wait(ctx)
}
