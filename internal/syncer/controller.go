// Package syncer implements the optimistic-concurrency scene
// synchronization protocol: debounced autosave, remote-modification
// detection via a lightweight timestamp probe, and user-driven conflict
// resolution.
package syncer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/haasonsaas/easel/internal/history"
	"github.com/haasonsaas/easel/internal/schedule"
	"github.com/haasonsaas/easel/internal/session"
	"github.com/haasonsaas/easel/internal/store"
	"github.com/haasonsaas/easel/pkg/models"
)

// Status is the save state of one tracked document.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusUnsaved  Status = "unsaved"
	StatusSaving   Status = "saving"
	StatusSaved    Status = "saved"
	StatusError    Status = "error"
	StatusConflict Status = "conflict"
)

// Resolution selects one of the three mutually exclusive conflict outcomes.
type Resolution string

const (
	// ResolveGetRemote adopts the authoritative remote document and history,
	// discarding local edits.
	ResolveGetRemote Resolution = "getRemote"
	// ResolveKeepLocal force-writes the local document over the remote copy.
	ResolveKeepLocal Resolution = "keepLocal"
	// ResolveFork preserves local edits under a new document identity while
	// the original adopts the remote copy.
	ResolveFork Resolution = "fork"
)

var (
	ErrUntracked         = errors.New("syncer: document not tracked")
	ErrNoConflict        = errors.New("syncer: no conflict to resolve")
	ErrUnknownResolution = errors.New("syncer: unknown resolution")
)

// DefaultDebounce is the autosave delay after the last edit.
const DefaultDebounce = time.Second

const defaultSaveTimeout = 10 * time.Second

// Controller observes dirty state on tracked document sessions, schedules
// debounced saves against the store, and gates every save behind a
// remote-modification probe. One Controller serves all open documents;
// per-document bookkeeping lives in a single private state cell rather than
// free-floating mutable refs.
type Controller struct {
	mu       sync.Mutex
	store    store.Store
	registry *session.Registry
	clock    schedule.Clock
	logger   *slog.Logger
	metrics  *Metrics

	debounce    time.Duration
	saveTimeout time.Duration
	offline     bool

	docs map[string]*docState
}

// docState is the per-document sync bookkeeping.
type docState struct {
	status          Status
	lastSavedHash   string
	lastKnownRemote time.Time
	remoteModified  time.Time
	timer           schedule.Timer
	saving          bool
	dirty           bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the timer source, letting tests advance a virtual
// clock deterministically.
func WithClock(clock schedule.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithDebounce overrides the autosave delay.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger.With("component", "syncer")
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *Metrics) Option {
	return func(c *Controller) { c.metrics = metrics }
}

// WithOffline starts the controller in offline mode: saves skip the remote
// probe since no out-of-band modification is possible.
func WithOffline(offline bool) Option {
	return func(c *Controller) { c.offline = offline }
}

// WithSaveTimeout bounds each probe-and-save cycle.
func WithSaveTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.saveTimeout = d
		}
	}
}

// New creates a controller saving through the given store for sessions in
// the given registry.
func New(st store.Store, registry *session.Registry, opts ...Option) *Controller {
	c := &Controller{
		store:       st,
		registry:    registry,
		clock:       schedule.Real(),
		logger:      slog.Default().With("component", "syncer"),
		debounce:    DefaultDebounce,
		saveTimeout: defaultSaveTimeout,
		docs:        make(map[string]*docState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Track begins sync bookkeeping for a session. lastKnownRemote is the
// document's modification time as fetched from the store, or zero for a
// document that has never been saved remotely.
func (c *Controller) Track(sess *session.DocumentSession, lastKnownRemote time.Time) error {
	if sess == nil {
		return ErrUntracked
	}
	id := sess.ID()
	hash, err := snapshotHash(sess.Document(), sess.Stack())
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.docs[id] = &docState{
		status:          StatusIdle,
		lastSavedHash:   hash,
		lastKnownRemote: lastKnownRemote,
	}
	c.mu.Unlock()

	sess.SetOnChange(c.noteEdit)
	return nil
}

// Untrack stops bookkeeping for a document, cancelling any pending save.
func (c *Controller) Untrack(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ds, ok := c.docs[id]; ok && ds.timer != nil {
		ds.timer.Stop()
	}
	delete(c.docs, id)
}

// SetOnline toggles offline mode.
func (c *Controller) SetOnline(online bool) {
	c.mu.Lock()
	c.offline = !online
	c.mu.Unlock()
}

// Status returns the save state for a document; StatusIdle for untracked
// ids.
func (c *Controller) Status(id string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ds, ok := c.docs[id]; ok {
		return ds.status
	}
	return StatusIdle
}

// RemoteModifiedAt returns the divergent remote timestamp recorded when a
// conflict was detected; zero when there is no conflict.
func (c *Controller) RemoteModifiedAt(id string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ds, ok := c.docs[id]; ok {
		return ds.remoteModified
	}
	return time.Time{}
}

// LastKnownServerModifiedAt returns the remote modification time recorded
// at the last successful save or fetch.
func (c *Controller) LastKnownServerModifiedAt(id string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ds, ok := c.docs[id]; ok {
		return ds.lastKnownRemote
	}
	return time.Time{}
}

// noteEdit is the session change hook: the edit moves the document to
// Unsaved synchronously and (re)starts the debounce timer. A second edit
// before the timer fires re-arms it rather than scheduling a second save.
func (c *Controller) noteEdit(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ds, ok := c.docs[id]
	if !ok {
		return
	}
	ds.dirty = true
	switch ds.status {
	case StatusConflict:
		// Autosave stays blocked until the conflict is resolved.
		return
	case StatusSaving:
		// The in-flight save is not interrupted; the edit lands in the next
		// debounce cycle when the save completes.
		return
	}
	ds.status = StatusUnsaved
	c.armTimerLocked(id, ds)
}

func (c *Controller) armTimerLocked(id string, ds *docState) {
	if ds.timer != nil {
		ds.timer.Stop()
	}
	ds.timer = c.clock.AfterFunc(c.debounce, func() {
		c.flush(id)
	})
}

// Flush forces a save cycle immediately, bypassing the debounce delay. The
// same probe-then-save gating applies.
func (c *Controller) Flush(id string) {
	c.flush(id)
}

func (c *Controller) flush(id string) {
	c.mu.Lock()
	ds, ok := c.docs[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	ds.timer = nil
	if ds.saving || ds.status == StatusConflict {
		c.mu.Unlock()
		return
	}
	sess, ok := c.registry.Get(id)
	if !ok {
		c.mu.Unlock()
		return
	}
	ds.saving = true
	ds.dirty = false
	lastKnown := ds.lastKnownRemote
	lastHash := ds.lastSavedHash
	offline := c.offline
	c.mu.Unlock()

	doc := sess.Document()
	stack := sess.Stack()
	hash, err := snapshotHash(doc, stack)
	if err != nil {
		c.failSave(id, fmt.Errorf("hash snapshot: %w", err))
		return
	}

	if hash == lastHash {
		c.metrics.RecordSkippedSave()
		c.finishSave(id, lastKnown, hash)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.saveTimeout)
	defer cancel()

	if !offline {
		remote, err := c.store.ModifiedAt(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Never saved remotely; nothing to diverge from.
		case err != nil:
			c.failSave(id, fmt.Errorf("probe: %w", err))
			return
		case !remote.Equal(lastKnown):
			c.raiseConflict(id, remote)
			return
		}
	}

	c.mu.Lock()
	ds.status = StatusSaving
	c.mu.Unlock()

	modAt, err := c.store.Put(ctx, doc)
	if err != nil {
		c.failSave(id, fmt.Errorf("save document: %w", err))
		return
	}
	if err := c.store.PutHistory(ctx, id, stack); err != nil {
		c.failSave(id, fmt.Errorf("save history: %w", err))
		return
	}

	c.metrics.RecordSave()
	c.logger.Debug("document saved", "document_id", id, "modified_at", modAt)
	c.finishSave(id, modAt, hash)
}

// finishSave records the save result. Edits made while the save was in
// flight re-arm the debounce cycle instead of being lost.
func (c *Controller) finishSave(id string, remote time.Time, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ds, ok := c.docs[id]
	if !ok {
		return
	}
	ds.saving = false
	ds.lastKnownRemote = remote
	ds.lastSavedHash = hash
	if ds.dirty {
		ds.status = StatusUnsaved
		c.armTimerLocked(id, ds)
		return
	}
	ds.status = StatusSaved
}

// failSave surfaces a probe or save failure as the Error state. No retry
// is scheduled; the next organic edit, or an explicit Flush, re-arms the
// cycle.
func (c *Controller) failSave(id string, err error) {
	c.metrics.RecordSaveError()
	c.logger.Warn("save failed", "document_id", id, "error", err)

	c.mu.Lock()
	defer c.mu.Unlock()
	ds, ok := c.docs[id]
	if !ok {
		return
	}
	ds.saving = false
	ds.dirty = true
	ds.status = StatusError
}

// raiseConflict aborts the save without writing; the document remains
// logically unsaved until the user resolves the divergence.
func (c *Controller) raiseConflict(id string, remote time.Time) {
	c.metrics.RecordConflict()
	c.logger.Info("remote modification detected",
		"document_id", id, "remote_modified_at", remote)

	c.mu.Lock()
	defer c.mu.Unlock()
	ds, ok := c.docs[id]
	if !ok {
		return
	}
	ds.saving = false
	ds.dirty = true
	ds.status = StatusConflict
	ds.remoteModified = remote
	if ds.timer != nil {
		ds.timer.Stop()
		ds.timer = nil
	}
}

// Probe checks a tracked document for out-of-band remote modification even
// when no save is pending, raising Conflict on divergence.
func (c *Controller) Probe(ctx context.Context, id string) error {
	c.mu.Lock()
	ds, ok := c.docs[id]
	if !ok {
		c.mu.Unlock()
		return ErrUntracked
	}
	if ds.saving || ds.status == StatusConflict {
		c.mu.Unlock()
		return nil
	}
	lastKnown := ds.lastKnownRemote
	offline := c.offline
	c.mu.Unlock()

	if offline {
		return nil
	}

	remote, err := c.store.ModifiedAt(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !remote.Equal(lastKnown) {
		c.raiseConflict(id, remote)
	}
	return nil
}

// StartPoller probes every tracked document at the given interval. The
// returned stop function cancels the poller.
func (c *Controller) StartPoller(interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}
	var mu sync.Mutex
	var timer schedule.Timer
	stopped := false

	var arm func()
	arm = func() {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		timer = c.clock.AfterFunc(interval, func() {
			c.probeAll()
			arm()
		})
	}
	arm()

	return func() {
		mu.Lock()
		defer mu.Unlock()
		stopped = true
		if timer != nil {
			timer.Stop()
		}
	}
}

func (c *Controller) probeAll() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	timeout := c.saveTimeout
	c.mu.Unlock()

	for _, id := range ids {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := c.Probe(ctx, id); err != nil && !errors.Is(err, ErrUntracked) {
			c.logger.Warn("probe failed", "document_id", id, "error", err)
		}
		cancel()
	}
}

// Resolve applies one of the three conflict resolutions. For ResolveFork
// the returned id is the fork's new document id; it is empty for the other
// resolutions.
func (c *Controller) Resolve(ctx context.Context, id string, res Resolution) (string, error) {
	c.mu.Lock()
	ds, ok := c.docs[id]
	if !ok {
		c.mu.Unlock()
		return "", ErrUntracked
	}
	if ds.status != StatusConflict {
		c.mu.Unlock()
		return "", ErrNoConflict
	}
	c.mu.Unlock()

	sess, ok := c.registry.Get(id)
	if !ok {
		return "", ErrUntracked
	}

	switch res {
	case ResolveGetRemote:
		return "", c.adoptRemote(ctx, id, sess)

	case ResolveKeepLocal:
		doc := sess.Document()
		stack := sess.Stack()
		modAt, err := c.store.Put(ctx, doc)
		if err != nil {
			c.failSave(id, fmt.Errorf("force save: %w", err))
			return "", err
		}
		if err := c.store.PutHistory(ctx, id, stack); err != nil {
			c.failSave(id, fmt.Errorf("force save history: %w", err))
			return "", err
		}
		hash, err := snapshotHash(doc, stack)
		if err != nil {
			return "", err
		}
		c.metrics.RecordSave()
		c.clearConflict(id, modAt, hash)
		return "", nil

	case ResolveFork:
		local := sess.Document()
		stack := sess.Stack()
		now := c.clock.Now()
		forkDoc := &models.Document{
			ID:         uuid.NewString(),
			Name:       local.Name,
			Items:      local.Items,
			CreatedAt:  now,
			ModifiedAt: now,
		}
		forkSess, err := c.registry.Open(forkDoc, stack)
		if err != nil {
			return "", err
		}
		if err := c.Track(forkSess, time.Time{}); err != nil {
			return "", err
		}
		c.markUnsaved(forkDoc.ID)

		if err := c.adoptRemote(ctx, id, sess); err != nil {
			return forkDoc.ID, err
		}
		c.metrics.RecordFork()
		c.logger.Info("document forked", "document_id", id, "fork_id", forkDoc.ID)
		return forkDoc.ID, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownResolution, res)
}

// adoptRemote replaces the local session with the authoritative remote
// document and its persisted history. A missing or corrupt remote history
// falls back to a fresh empty stack rather than blocking the load.
func (c *Controller) adoptRemote(ctx context.Context, id string, sess *session.DocumentSession) error {
	doc, err := c.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch remote document: %w", err)
	}
	stack, err := c.store.GetHistory(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrCorruptHistory) {
			return fmt.Errorf("fetch remote history: %w", err)
		}
		if errors.Is(err, store.ErrCorruptHistory) {
			c.logger.Warn("remote history corrupt, starting fresh", "document_id", id, "error", err)
		}
		stack = history.NewStack()
	}
	sess.Replace(doc, stack)

	hash, err := snapshotHash(doc, stack)
	if err != nil {
		return err
	}
	c.clearConflict(id, doc.ModifiedAt, hash)
	return nil
}

// markUnsaved puts a freshly tracked document straight into the Unsaved
// state with a debounce cycle armed; forks begin life this way. The saved
// hash is cleared so the first cycle always writes.
func (c *Controller) markUnsaved(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ds, ok := c.docs[id]
	if !ok {
		return
	}
	ds.dirty = true
	ds.status = StatusUnsaved
	ds.lastSavedHash = ""
	c.armTimerLocked(id, ds)
}

func (c *Controller) clearConflict(id string, remote time.Time, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ds, ok := c.docs[id]
	if !ok {
		return
	}
	ds.status = StatusSaved
	ds.lastKnownRemote = remote
	ds.lastSavedHash = hash
	ds.remoteModified = time.Time{}
	ds.dirty = false
	ds.saving = false
	if ds.timer != nil {
		ds.timer.Stop()
		ds.timer = nil
	}
}

// snapshotHash fingerprints what a save would persist: the item snapshot
// and the serialized history stack.
func snapshotHash(doc *models.Document, stack *history.Stack) (string, error) {
	items, err := json.Marshal(doc.Items)
	if err != nil {
		return "", err
	}
	hist, err := stack.MarshalJSON()
	if err != nil {
		return "", err
	}
	h := blake3.New()
	_, _ = h.Write(items)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(hist)
	return hex.EncodeToString(h.Sum(nil)), nil
}
