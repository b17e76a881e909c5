package offline

import (
	"errors"
	"net/http"
	"sort"
	"testing"
)

// openTestStorages opens one of every backend against temp directories so the
// whole contract suite runs for each.
func openTestStorages(t *testing.T) map[string]Storage {
	t.Helper()

	lvl, err := openLevelStorage(t.TempDir())
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	sq, err := openSQLiteStorage(t.TempDir())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	backends := map[string]Storage{
		"memory":  newMemoryStorage(),
		"leveldb": lvl,
		"sqlite":  sq,
	}
	t.Cleanup(func() {
		for _, s := range backends {
			_ = s.Close()
		}
	})
	return backends
}

func TestStorageContract(t *testing.T) {
	for name, storage := range openTestStorages(t) {
		t.Run(name, func(t *testing.T) {
			store := storage.Store("fleet-static-v1")

			if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("missing key: got err=%v want=%v", err, ErrNotFound)
			}

			ent := CacheEntry{
				Status:     http.StatusOK,
				Header:     http.Header{"Content-Type": {"text/css"}},
				Body:       []byte("body { color: red }"),
				CapturedAt: 1_700_000_000,
			}
			if err := store.Put("GET origin.test/app.css", ent); err != nil {
				t.Fatalf("put: %v", err)
			}

			got, err := store.Get("GET origin.test/app.css")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status != ent.Status {
				t.Fatalf("status: got=%d want=%d", got.Status, ent.Status)
			}
			if string(got.Body) != string(ent.Body) {
				t.Fatalf("body: got=%q want=%q", got.Body, ent.Body)
			}
			if got.Header.Get("Content-Type") != "text/css" {
				t.Fatalf("header: got=%q want=%q", got.Header.Get("Content-Type"), "text/css")
			}
			if got.CapturedAt != ent.CapturedAt {
				t.Fatalf("capturedAt: got=%d want=%d", got.CapturedAt, ent.CapturedAt)
			}
		})
	}
}

func TestStorageOverwriteLastWriteWins(t *testing.T) {
	for name, storage := range openTestStorages(t) {
		t.Run(name, func(t *testing.T) {
			store := storage.Store("fleet-api-v1")
			key := "GET origin.test/api/pilots"

			for _, body := range []string{"first", "second", "third"} {
				err := store.Put(key, CacheEntry{Status: 200, Header: http.Header{}, Body: []byte(body)})
				if err != nil {
					t.Fatalf("put %q: %v", body, err)
				}
			}

			got, err := store.Get(key)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if string(got.Body) != "third" {
				t.Fatalf("body: got=%q want=%q", got.Body, "third")
			}

			info, err := store.Info()
			if err != nil {
				t.Fatalf("info: %v", err)
			}
			if info.Entries != 1 {
				t.Fatalf("entries after overwrite: got=%d want=1", info.Entries)
			}
		})
	}
}

func TestStorageNamesIncludeEmptyStores(t *testing.T) {
	for name, storage := range openTestStorages(t) {
		t.Run(name, func(t *testing.T) {
			// Materializing a store must make it visible before any entry
			// lands in it, or activation could never see fresh stores.
			storage.Store("fleet-shell-v2")
			storage.Store("fleet-static-v2")

			names, err := storage.Names()
			if err != nil {
				t.Fatalf("names: %v", err)
			}
			sort.Strings(names)
			want := []string{"fleet-shell-v2", "fleet-static-v2"}
			if len(names) != len(want) {
				t.Fatalf("names: got=%v want=%v", names, want)
			}
			for i := range want {
				if names[i] != want[i] {
					t.Fatalf("names: got=%v want=%v", names, want)
				}
			}
		})
	}
}

func TestStorageDeleteRemovesWholeStore(t *testing.T) {
	for name, storage := range openTestStorages(t) {
		t.Run(name, func(t *testing.T) {
			doomed := storage.Store("fleet-api-v0")
			keep := storage.Store("fleet-api-v1")
			for i, store := range []Store{doomed, keep} {
				err := store.Put("k", CacheEntry{Status: 200, Header: http.Header{}, Body: []byte{byte(i)}})
				if err != nil {
					t.Fatalf("put: %v", err)
				}
			}

			if err := storage.Delete("fleet-api-v0"); err != nil {
				t.Fatalf("delete: %v", err)
			}

			names, err := storage.Names()
			if err != nil {
				t.Fatalf("names: %v", err)
			}
			if len(names) != 1 || names[0] != "fleet-api-v1" {
				t.Fatalf("names after delete: got=%v want=[fleet-api-v1]", names)
			}
			if _, err := storage.Store("fleet-api-v0").Get("k"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("deleted store entry: got err=%v want=%v", err, ErrNotFound)
			}
			if _, err := keep.Get("k"); err != nil {
				t.Fatalf("surviving store entry: %v", err)
			}
		})
	}
}

func TestStorageInfoCounts(t *testing.T) {
	for name, storage := range openTestStorages(t) {
		t.Run(name, func(t *testing.T) {
			store := storage.Store("fleet-images-v1")
			bodies := []string{"aa", "bbbb"}
			for i, body := range bodies {
				err := store.Put(string(rune('a'+i)), CacheEntry{Status: 200, Header: http.Header{}, Body: []byte(body)})
				if err != nil {
					t.Fatalf("put: %v", err)
				}
			}

			info, err := store.Info()
			if err != nil {
				t.Fatalf("info: %v", err)
			}
			if info.Entries != 2 {
				t.Fatalf("entries: got=%d want=2", info.Entries)
			}
			if info.Bytes <= 0 {
				t.Fatalf("bytes: got=%d want>0", info.Bytes)
			}
		})
	}
}
