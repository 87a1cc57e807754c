// Package items holds the list synchronization controller.
//
// The controller owns the session's in-memory copy of the Items table, the
// pending name for the next add, and at most one selected record. It calls
// the gateway for every mutation and applies the result to memory only after
// the gateway call succeeds. The store stays the source of truth; the
// collection is a read-through cache refreshed by Load and kept in step by
// Add, Remove and Update.
//
// Display surfaces drive it in three steps:
//  1. subscribe with OnCollectionChanged, OnSelectionChanged,
//     OnNewNameChanged and OnError
//  2. forward user intent (SetNewName, Select, SetSelectedName, Execute)
//  3. re-evaluate Commands() guards after each notification
//
// Operations block the calling goroutine only while the gateway call is in
// flight. No lock is held across that call, so two operations started from
// different goroutines can interleave. Results are applied by record id once
// the call returns, never through a reference captured before it.
package items

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/duoapp/duo/internal/store"
)

var (
	// ErrCommandDisabled is returned when an operation is invoked while its
	// guard is false. The gateway is not called.
	ErrCommandDisabled = errors.New("command not available")

	// ErrUnknownRecord is returned by Select for an id not in the collection.
	ErrUnknownRecord = errors.New("record not in list")
)

// Gateway is the persistence surface the controller needs.
type Gateway interface {
	ListAll(ctx context.Context) ([]store.Record, error)
	Insert(ctx context.Context, name string) (int64, error)
	Update(ctx context.Context, id int64, name string) error
	Delete(ctx context.Context, id int64) error
}

// ChangeKind describes how the collection changed.
type ChangeKind string

const (
	ChangeReset    ChangeKind = "reset"
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeReplaced ChangeKind = "replaced"
)

// CollectionChange is delivered to OnCollectionChanged subscribers.
type CollectionChange struct {
	Kind ChangeKind `json:"kind"`

	// Index and Record are set for added, removed and replaced.
	Index  int          `json:"index"`
	Record store.Record `json:"record"`

	// Items is the full collection after a reset.
	Items []store.Record `json:"items,omitempty"`
}

// Selection is delivered to OnSelectionChanged subscribers. Record is the
// editable working copy of the selected record.
type Selection struct {
	Selected bool         `json:"selected"`
	Record   store.Record `json:"record"`
}

// Failure is a surfaced operation error. Message is the human-readable text
// shown to the user; Err is the underlying gateway error.
type Failure struct {
	Op      string
	Message string
	Err     error
}

func (f *Failure) Error() string { return f.Message }
func (f *Failure) Unwrap() error { return f.Err }

// Controller mediates between a Gateway and the display surfaces.
type Controller struct {
	gw     Gateway
	logger *zap.Logger

	mu       sync.Mutex
	items    []store.Record
	newName  string
	selected *store.Record // working copy; nil when nothing is selected

	collectionSubs subscribers[CollectionChange]
	selectionSubs  subscribers[Selection]
	newNameSubs    subscribers[string]
	errorSubs      subscribers[*Failure]
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a controller with an empty collection. Call Load to populate it.
func New(gw Gateway, opts ...Option) *Controller {
	c := &Controller{
		gw:     gw,
		logger: zap.NewNop(),
		items:  []store.Record{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnCollectionChanged subscribes to collection changes.
func (c *Controller) OnCollectionChanged(fn func(CollectionChange)) (unsubscribe func()) {
	return c.collectionSubs.add(fn)
}

// OnSelectionChanged subscribes to selection changes, including edits to the
// selected record's working copy.
func (c *Controller) OnSelectionChanged(fn func(Selection)) (unsubscribe func()) {
	return c.selectionSubs.add(fn)
}

// OnNewNameChanged subscribes to changes of the pending new name.
func (c *Controller) OnNewNameChanged(fn func(string)) (unsubscribe func()) {
	return c.newNameSubs.add(fn)
}

// OnError subscribes to surfaced failures.
func (c *Controller) OnError(fn func(*Failure)) (unsubscribe func()) {
	return c.errorSubs.add(fn)
}

// Items returns a copy of the collection.
func (c *Controller) Items() []store.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// NewName returns the pending name for the next add.
func (c *Controller) NewName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newName
}

// Selected returns the working copy of the selected record.
func (c *Controller) Selected() (store.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return store.Record{}, false
	}
	return *c.selected, true
}

// CanAdd reports whether the pending name is non-empty after trimming.
func (c *Controller) CanAdd() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.TrimSpace(c.newName) != ""
}

// CanMutateSelection reports whether a record is selected.
func (c *Controller) CanMutateSelection() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected != nil
}

// SetNewName sets the pending name.
func (c *Controller) SetNewName(name string) {
	c.mu.Lock()
	changed := c.newName != name
	c.newName = name
	c.mu.Unlock()

	if changed {
		c.newNameSubs.notify(name)
	}
}

// Select makes the record with the given id the selection.
func (c *Controller) Select(id int64) error {
	c.mu.Lock()
	idx := c.indexOf(id)
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("select %d: %w", id, ErrUnknownRecord)
	}
	rec := c.items[idx]
	c.selected = &rec
	c.mu.Unlock()

	c.selectionSubs.notify(Selection{Selected: true, Record: rec})
	return nil
}

// ClearSelection removes the selection, if any.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	had := c.selected != nil
	c.selected = nil
	c.mu.Unlock()

	if had {
		c.selectionSubs.notify(Selection{})
	}
}

// SetSelectedName edits the selected record's working copy. The store and
// the collection are untouched until Update.
func (c *Controller) SetSelectedName(name string) error {
	c.mu.Lock()
	if c.selected == nil {
		c.mu.Unlock()
		return fmt.Errorf("rename: %w", ErrCommandDisabled)
	}
	c.selected.Name = name
	rec := *c.selected
	c.mu.Unlock()

	c.selectionSubs.notify(Selection{Selected: true, Record: rec})
	return nil
}

// Load replaces the collection with the store's contents. On failure the
// collection is left as it was. A selection whose record is gone is cleared.
func (c *Controller) Load(ctx context.Context) error {
	records, err := c.gw.ListAll(ctx)
	if err != nil {
		return c.fail("load", "Error loading items", err)
	}

	c.mu.Lock()
	c.items = append([]store.Record{}, records...)
	snapshot := c.snapshot()

	var sel *Selection
	if c.selected != nil {
		if idx := c.indexOf(c.selected.ID); idx >= 0 {
			rec := c.items[idx]
			c.selected = &rec
			sel = &Selection{Selected: true, Record: rec}
		} else {
			c.selected = nil
			sel = &Selection{}
		}
	}
	c.mu.Unlock()

	c.logger.Debug("loaded items", zap.Int("count", len(snapshot)))
	c.collectionSubs.notify(CollectionChange{Kind: ChangeReset, Items: snapshot})
	if sel != nil {
		c.selectionSubs.notify(*sel)
	}
	return nil
}

// Add inserts the pending name and appends the stored record, or replaces
// it in place if a concurrent Load already brought it in. The pending name
// is cleared unless it was edited while the insert was in flight.
func (c *Controller) Add(ctx context.Context) error {
	c.mu.Lock()
	name := c.newName
	c.mu.Unlock()

	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("add: %w", ErrCommandDisabled)
	}

	id, err := c.gw.Insert(ctx, name)
	if err != nil {
		return c.fail("add", "Error adding item", err)
	}

	rec := store.Record{ID: id, Name: name}

	// A Load that finished while the insert was in flight may already hold
	// the new row.
	kind := ChangeAdded
	c.mu.Lock()
	idx := c.indexOf(id)
	if idx >= 0 {
		c.items[idx] = rec
		kind = ChangeReplaced
	} else {
		c.items = append(c.items, rec)
		idx = len(c.items) - 1
	}
	cleared := c.newName == name
	if cleared {
		c.newName = ""
	}
	c.mu.Unlock()

	c.logger.Info("item added", zap.Int64("id", id), zap.String("name", name))
	c.collectionSubs.notify(CollectionChange{Kind: kind, Index: idx, Record: rec})
	if cleared {
		c.newNameSubs.notify("")
	}
	return nil
}

// Remove deletes the selected record, then drops it from the collection and
// clears the selection. A record already deleted by another session is still
// removed from memory, since the store reports no error for a missing id.
func (c *Controller) Remove(ctx context.Context) error {
	c.mu.Lock()
	if c.selected == nil {
		c.mu.Unlock()
		return fmt.Errorf("remove: %w", ErrCommandDisabled)
	}
	id := c.selected.ID
	c.mu.Unlock()

	if err := c.gw.Delete(ctx, id); err != nil {
		return c.fail("remove", "Error deleting item", err)
	}

	c.mu.Lock()
	idx := c.indexOf(id)
	var removed store.Record
	if idx >= 0 {
		removed = c.items[idx]
		c.items = append(c.items[:idx], c.items[idx+1:]...)
	}
	clearedSel := c.selected != nil && c.selected.ID == id
	if clearedSel {
		c.selected = nil
	}
	c.mu.Unlock()

	c.logger.Info("item removed", zap.Int64("id", id))
	if idx >= 0 {
		c.collectionSubs.notify(CollectionChange{Kind: ChangeRemoved, Index: idx, Record: removed})
	}
	if clearedSel {
		c.selectionSubs.notify(Selection{})
	}
	return nil
}

// Update pushes the selection's working copy to the store, then replaces the
// same-index collection entry with it so surfaces redraw the row.
func (c *Controller) Update(ctx context.Context) error {
	c.mu.Lock()
	if c.selected == nil {
		c.mu.Unlock()
		return fmt.Errorf("update: %w", ErrCommandDisabled)
	}
	rec := *c.selected
	c.mu.Unlock()

	if err := c.gw.Update(ctx, rec.ID, rec.Name); err != nil {
		return c.fail("update", "Error updating item", err)
	}

	c.mu.Lock()
	idx := c.indexOf(rec.ID)
	if idx >= 0 {
		c.items[idx] = rec
	}
	c.mu.Unlock()

	c.logger.Info("item updated", zap.Int64("id", rec.ID), zap.String("name", rec.Name))
	if idx >= 0 {
		c.collectionSubs.notify(CollectionChange{Kind: ChangeReplaced, Index: idx, Record: rec})
	}
	return nil
}

// snapshot must be called with c.mu held. It never returns nil.
func (c *Controller) snapshot() []store.Record {
	out := make([]store.Record, len(c.items))
	copy(out, c.items)
	return out
}

// indexOf must be called with c.mu held.
func (c *Controller) indexOf(id int64) int {
	for i, r := range c.items {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) fail(op, prefix string, err error) error {
	f := &Failure{
		Op:      op,
		Message: fmt.Sprintf("%s: %v", prefix, err),
		Err:     err,
	}
	c.logger.Warn("operation failed", zap.String("op", op), zap.Error(err))
	c.errorSubs.notify(f)
	return f
}
