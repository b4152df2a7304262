// File path: internal/snapshot/store_test.go
package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func TestWriteIfChangedIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	wrote, err := store.WriteIfChanged("databases/type=sqlite/database=crm/schema=main/table=orders/schema.md", "# orders\n")
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	if !wrote {
		t.Fatal("expected first write to report a change")
	}

	wrote, err = store.WriteIfChanged("databases/type=sqlite/database=crm/schema=main/table=orders/schema.md", "# orders\n")
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if wrote {
		t.Fatal("identical content must not report a change")
	}

	wrote, err = store.WriteIfChanged("databases/type=sqlite/database=crm/schema=main/table=orders/schema.md", "# orders v2\n")
	if err != nil {
		t.Fatalf("third write: %v", err)
	}
	if !wrote {
		t.Fatal("modified content must report a change")
	}
}

func TestPathTraversalRejected(t *testing.T) {
	store := newTestStore(t)

	outside := filepath.Join(filepath.Dir(store.Root()), "secret.md")
	if err := os.WriteFile(outside, []byte("confidential"), 0o644); err != nil {
		t.Fatalf("plant outside file: %v", err)
	}

	for _, rel := range []string{
		"../secret.md",
		"databases/../../secret.md",
		outside,
	} {
		if _, err := store.Read(rel); !errors.Is(err, ErrPathTraversal) {
			t.Errorf("Read(%q) error = %v, want ErrPathTraversal", rel, err)
		}
		if _, err := store.WriteIfChanged(rel, "x"); !errors.Is(err, ErrPathTraversal) {
			t.Errorf("WriteIfChanged(%q) error = %v, want ErrPathTraversal", rel, err)
		}
		if _, err := store.List(rel); !errors.Is(err, ErrPathTraversal) {
			t.Errorf("List(%q) error = %v, want ErrPathTraversal", rel, err)
		}
	}
}

func TestSearchMatchesLinesCaseInsensitively(t *testing.T) {
	store := newTestStore(t)

	mustWrite(t, store, "databases/type=sqlite/database=crm/schema=main/table=orders/schema.md",
		"# Orders\n\n| order_id | INTEGER |\n| customer_id | INTEGER |\n")
	mustWrite(t, store, "databases/type=sqlite/database=crm/schema=main/table=customers/schema.md",
		"# Customers\n\n| customer_id | INTEGER |\n")

	matches, err := store.Search("ORDER", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matching documents, want 1", len(matches))
	}
	if matches[0].Path != "databases/type=sqlite/database=crm/schema=main/table=orders/schema.md" {
		t.Errorf("unexpected match path %q", matches[0].Path)
	}
	if len(matches[0].Lines) != 2 {
		t.Errorf("got %d matching lines, want 2", len(matches[0].Lines))
	}
	if matches[0].Lines[0].Number != 1 {
		t.Errorf("first matching line = %d, want 1", matches[0].Lines[0].Number)
	}
}

func TestSearchIgnoresNonMarkdownFiles(t *testing.T) {
	store := newTestStore(t)
	mustWrite(t, store, "databases/notes.txt", "orders everywhere")

	matches, err := store.Search("orders", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("got %d matches from non-markdown file, want 0", len(matches))
	}
}

func TestPruneStaleRemovesOnlyInactiveTables(t *testing.T) {
	store := newTestStore(t)

	active := "type=sqlite/database=crm/schema=main/table=orders"
	stale := "type=sqlite/database=crm/schema=main/table=legacy"
	mustWrite(t, store, "databases/"+active+"/schema.md", "# orders\n")
	mustWrite(t, store, "databases/"+stale+"/schema.md", "# legacy\n")

	if err := store.PruneStale("databases", map[string]bool{active: true}); err != nil {
		t.Fatalf("prune: %v", err)
	}

	if _, err := store.Read("databases/" + active + "/schema.md"); err != nil {
		t.Errorf("active table document removed: %v", err)
	}
	if _, err := store.Read("databases/" + stale + "/schema.md"); err == nil {
		t.Error("stale table document still present")
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "databases", "type=sqlite", "database=crm", "schema=main", "table=legacy")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("stale table directory still present: %v", err)
	}
}

func TestPruneStaleRemovesEmptyParents(t *testing.T) {
	store := newTestStore(t)

	mustWrite(t, store, "databases/type=duckdb/database=old/schema=main/table=gone/schema.md", "# gone\n")

	if err := store.PruneStale("databases", map[string]bool{}); err != nil {
		t.Fatalf("prune: %v", err)
	}

	if _, err := os.Stat(filepath.Join(store.Root(), "databases", "type=duckdb")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("empty parent chain not removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "databases")); err != nil {
		t.Errorf("prune prefix itself must survive: %v", err)
	}
}

func TestListMissingDirectoryIsEmpty(t *testing.T) {
	store := newTestStore(t)
	entries, err := store.List("databases")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("got %d entries, want 0", len(entries))
	}
}

func mustWrite(t *testing.T, store *Store, rel, content string) {
	t.Helper()
	if _, err := store.WriteIfChanged(rel, content); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}
