package items

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/duoapp/duo/internal/config"
	"github.com/duoapp/duo/internal/store"
)

func openSQLiteGateway(t *testing.T) *store.Gateway {
	t.Helper()

	g, err := store.Open(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "items.db"),
	})
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })

	if err := g.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	return g
}

// assertInSync checks the collection against a fresh read of the store.
func assertInSync(t *testing.T, c *Controller, g *store.Gateway) {
	t.Helper()

	stored, err := g.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll() failed: %v", err)
	}
	if got := c.Items(); !reflect.DeepEqual(got, stored) {
		t.Errorf("collection %v differs from store %v", got, stored)
	}
}

func TestController_StaysInSyncWithStore(t *testing.T) {
	g := openSQLiteGateway(t)
	c := New(g)
	ctx := context.Background()

	if err := c.Load(ctx); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	assertInSync(t, c, g)

	for _, name := range []string{"Milk", "Eggs", "Bread"} {
		c.SetNewName(name)
		if err := c.Add(ctx); err != nil {
			t.Fatalf("Add(%q) failed: %v", name, err)
		}
		assertInSync(t, c, g)
	}

	if got := c.Items()[0]; got != (store.Record{ID: 1, Name: "Milk"}) {
		t.Errorf("first record = %v, want {1 Milk}", got)
	}

	_ = c.Select(2)
	_ = c.SetSelectedName("Free-range eggs")
	if err := c.Update(ctx); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	assertInSync(t, c, g)

	// An empty name is not offered by the add gate but the update path
	// accepts it: the schema enforces NOT NULL only.
	_ = c.SetSelectedName("")
	if err := c.Update(ctx); err != nil {
		t.Fatalf("Update() with empty name failed: %v", err)
	}
	assertInSync(t, c, g)

	_ = c.Select(1)
	if err := c.Remove(ctx); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	assertInSync(t, c, g)
}

func TestController_RemoveDeletedByOtherSession(t *testing.T) {
	g := openSQLiteGateway(t)
	ctx := context.Background()

	mine := New(g)
	theirs := New(g)

	mine.SetNewName("Milk")
	if err := mine.Add(ctx); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := theirs.Load(ctx); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	_ = theirs.Select(1)
	if err := theirs.Remove(ctx); err != nil {
		t.Fatalf("theirs.Remove() failed: %v", err)
	}

	_ = mine.Select(1)
	if err := mine.Remove(ctx); err != nil {
		t.Fatalf("mine.Remove() of already-deleted record failed: %v", err)
	}
	if len(mine.Items()) != 0 {
		t.Errorf("Items() = %v, want empty", mine.Items())
	}
	assertInSync(t, mine, g)
}

func TestController_ConstraintViolationSurfaced(t *testing.T) {
	g := openSQLiteGateway(t)
	c := New(g)
	ctx := context.Background()

	var messages []string
	c.OnError(func(f *Failure) { messages = append(messages, f.Message) })

	long := make([]byte, store.MaxNameLength+1)
	for i := range long {
		long[i] = 'x'
	}
	c.SetNewName(string(long))

	err := c.Add(ctx)
	if !store.IsConstraint(err) {
		t.Fatalf("Add() = %v, want constraint violation", err)
	}
	if len(messages) != 1 {
		t.Errorf("surfaced %d messages, want 1", len(messages))
	}
	assertInSync(t, c, g)
}
