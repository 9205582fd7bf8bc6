package autosave

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gencodedoc/internal/gcd"
)

func TestFsnotifyObserver(t *testing.T) {
	t.Run("reports file writes", func(t *testing.T) {
		root := t.TempDir()
		obs := NewFsnotifyObserver(filepath.Join(root, ".gencodedoc"), gcd.NewNopLogger())

		changed := make(chan struct{}, 1)
		if err := obs.Start(root, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		}); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		defer obs.Stop()

		if err := os.WriteFile(filepath.Join(root, "touched.txt"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}

		select {
		case <-changed:
		case <-time.After(3 * time.Second):
			t.Fatal("no change signal for a file write")
		}
	})

	t.Run("ignores writes under the storage directory", func(t *testing.T) {
		root := t.TempDir()
		storage := filepath.Join(root, ".gencodedoc")
		if err := os.MkdirAll(storage, 0o755); err != nil {
			t.Fatal(err)
		}

		obs := NewFsnotifyObserver(storage, gcd.NewNopLogger())
		changed := make(chan struct{}, 1)
		if err := obs.Start(root, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		}); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		defer obs.Stop()

		if err := os.WriteFile(filepath.Join(storage, "gencodedoc.db"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}

		select {
		case <-changed:
			t.Fatal("storage-directory write marked the tree dirty")
		case <-time.After(500 * time.Millisecond):
		}
	})

	t.Run("stop returns promptly and is idempotent", func(t *testing.T) {
		root := t.TempDir()
		obs := NewFsnotifyObserver("", gcd.NewNopLogger())
		if err := obs.Start(root, func() {}); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		done := make(chan struct{})
		go func() {
			obs.Stop()
			obs.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Stop() hung")
		}
	})
}
