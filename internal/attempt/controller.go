// Package attempt owns the analysis attempt lifecycle: the single state
// machine a chart image moves through from selection to a resolved
// analysis outcome. The controller is the only writer of attempt state and
// the only owner of the preview resource.
package attempt

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgnsrekt/chart_agent/internal/analyze"
	"github.com/dgnsrekt/chart_agent/internal/identity"
	"github.com/dgnsrekt/chart_agent/internal/preview"
)

// State is the attempt state. Exactly one state is active at any time.
type State int

const (
	StateIdle State = iota
	StateReady
	StateInFlight
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateInFlight:
		return "in_flight"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

var (
	// ErrInFlight is returned when a mutation arrives while a submission
	// is outstanding. At most one call is in flight per attempt.
	ErrInFlight = errors.New("analysis already in flight")
	// ErrNoInput is returned by Submit when no image is selected.
	ErrNoInput = errors.New("no image selected")
)

// Analyzer issues the remote analysis call.
type Analyzer interface {
	Analyze(ctx context.Context, input analyze.Input, tgID int64) (*analyze.Result, error)
}

// Snapshot is the render-facing view of the attempt. It is the single
// source of truth for the UI; no other component mutates attempt state.
type Snapshot struct {
	State   State
	Preview preview.Handle
	Result  *analyze.Result
	// Message is the displayable failure message when State is StateFailed.
	Message string
	// Prominent marks quota/identity-class failures for native host-level
	// surfacing; everything else renders inline only.
	Prominent bool
}

// Controller drives the attempt state machine.
type Controller struct {
	analyzer Analyzer
	bridge   identity.Bridge
	previews *preview.Store
	classify *analyze.Classifier
	onChange func(Snapshot)

	mu        sync.Mutex
	gen       uint64
	state     State
	input     *analyze.Input
	preview   preview.Handle
	result    *analyze.Result
	message   string
	prominent bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithListener registers a render callback invoked after every state
// change, outside the controller lock. The callback must not call back
// into the controller synchronously from Submit's goroutine ordering
// assumptions; dispatching to a channel is the intended use.
func WithListener(fn func(Snapshot)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// NewController builds a Controller in StateIdle.
func NewController(analyzer Analyzer, bridge identity.Bridge, previews *preview.Store, classifier *analyze.Classifier, opts ...Option) *Controller {
	c := &Controller{
		analyzer: analyzer,
		bridge:   bridge,
		previews: previews,
		classify: classifier,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current attempt state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:     c.state,
		Preview:   c.preview,
		Result:    c.result,
		Message:   c.message,
		Prominent: c.prominent,
	}
}

// Select stores a newly chosen image and derives its preview. The prior
// preview is released before the new one is created, so at most one
// preview is ever live. Prior results and errors are cleared. Rejected
// while a submission is outstanding.
func (c *Controller) Select(input analyze.Input) error {
	if len(input.Data) == 0 {
		return analyze.NewError(analyze.CodeValidation, "selected file is empty", nil)
	}
	if !strings.HasPrefix(input.MIME, "image/") {
		return analyze.NewError(analyze.CodeValidation, "selected file is not an image", nil)
	}

	c.mu.Lock()
	if c.state == StateInFlight {
		c.mu.Unlock()
		return ErrInFlight
	}

	c.releasePreviewLocked()

	handle, err := c.previews.Acquire(input.Name, input.Data)
	if err != nil {
		// Failed derivation leaves a clean Idle attempt; the prior
		// preview is already released on this path too.
		c.input = nil
		c.clearOutcomeLocked()
		c.state = StateIdle
		c.gen++
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		return err
	}

	c.input = &input
	c.preview = handle
	c.clearOutcomeLocked()
	c.state = StateReady
	c.gen++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// Submit resolves the caller identity and issues the remote call. Identity
// resolution happens here, at submission time, and failure short-circuits
// to StateFailed without any network traffic. A second Submit while a call
// is outstanding is rejected; exactly one call is issued per attempt.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateInFlight {
		c.mu.Unlock()
		return ErrInFlight
	}
	if c.input == nil {
		c.mu.Unlock()
		return ErrNoInput
	}

	tgID, err := identity.Resolve(c.bridge)
	if err != nil {
		c.failLocked(err)
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		return err
	}

	c.clearOutcomeLocked()
	c.state = StateInFlight
	gen := c.gen
	input := *c.input
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	go func() {
		res, callErr := c.analyzer.Analyze(ctx, input, tgID)
		c.finish(gen, res, callErr)
	}()
	return nil
}

// Reset returns the controller to StateIdle, releasing the preview and
// clearing input, result and error. A call still in flight keeps running;
// its eventual response no longer belongs to the current generation and
// is discarded on arrival.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.releasePreviewLocked()
	c.input = nil
	c.clearOutcomeLocked()
	c.state = StateIdle
	c.gen++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// finish applies the outcome of the remote call. Every submitted attempt
// terminates in exactly one of StateSucceeded or StateFailed unless the
// attempt generation has moved on, in which case the response is stale and
// must not overwrite the newer state.
func (c *Controller) finish(gen uint64, res *analyze.Result, err error) {
	c.mu.Lock()
	if c.state != StateInFlight || gen != c.gen {
		c.mu.Unlock()
		slog.Debug("stale analysis response discarded", "generation", gen)
		return
	}

	switch {
	case err != nil:
		c.failLocked(err)
	case res == nil || !res.Signal.Valid():
		c.failLocked(analyze.NewError(analyze.CodeProtocol, analyze.GenericFailureMessage, nil))
	default:
		c.result = res
		c.message = ""
		c.prominent = false
		c.state = StateSucceeded
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

func (c *Controller) failLocked(err error) {
	c.result = nil
	c.message = displayMessage(err)
	c.prominent = c.classify != nil && c.classify.Prominent(c.message)
	c.state = StateFailed
}

func (c *Controller) clearOutcomeLocked() {
	c.result = nil
	c.message = ""
	c.prominent = false
}

func (c *Controller) releasePreviewLocked() {
	if c.preview.ID != "" {
		c.previews.Release(c.preview)
		c.preview = preview.Handle{}
	}
}

func (c *Controller) notify(snap Snapshot) {
	if c.onChange != nil {
		c.onChange(snap)
	}
}

func displayMessage(err error) string {
	var coded *analyze.CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}
	return analyze.GenericFailureMessage
}
