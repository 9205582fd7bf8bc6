package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gencodedoc/internal/config"
	"gencodedoc/internal/gcd"
)

func initProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := config.Save(config.NewConfig(root)); err != nil {
		t.Fatalf("saving config: %v", err)
	}
	return root
}

func TestOpenProject(t *testing.T) {
	root := initProject(t)

	p, err := OpenProject(root, gcd.NewNopLogger(), gcd.RealClock{})
	if err != nil {
		t.Fatalf("OpenProject() error = %v", err)
	}
	defer p.Close()

	if _, err := os.Stat(p.Config.StorageDir()); err != nil {
		t.Errorf("storage directory not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(p.Config.StorageDir(), "gencodedoc.db")); err != nil {
		t.Errorf("metadata store not created: %v", err)
	}
}

func TestRegistry(t *testing.T) {
	logger := gcd.NewNopLogger()

	t.Run("uninitialized project is rejected", func(t *testing.T) {
		r := NewRegistry(logger, gcd.RealClock{})
		defer r.Shutdown()

		_, err := r.Project(t.TempDir())
		if !errors.Is(err, gcd.ErrNotInitialized) {
			t.Errorf("error = %v, want ErrNotInitialized", err)
		}
	})

	t.Run("projects are cached by path", func(t *testing.T) {
		r := NewRegistry(logger, gcd.RealClock{})
		defer r.Shutdown()
		root := initProject(t)

		first, err := r.Project(root)
		if err != nil {
			t.Fatalf("Project() error = %v", err)
		}
		second, err := r.Project(root)
		if err != nil {
			t.Fatalf("Project() error = %v", err)
		}
		if first != second {
			t.Error("second lookup built a new project")
		}
	})

	t.Run("invalidate forces a reload", func(t *testing.T) {
		r := NewRegistry(logger, gcd.RealClock{})
		defer r.Shutdown()
		root := initProject(t)

		first, err := r.Project(root)
		if err != nil {
			t.Fatalf("Project() error = %v", err)
		}

		first.Config.CompressionLevel = 19
		if err := config.Save(first.Config); err != nil {
			t.Fatalf("saving config: %v", err)
		}
		r.Invalidate(root)

		fresh, err := r.Project(root)
		if err != nil {
			t.Fatalf("Project() error = %v", err)
		}
		if fresh == first {
			t.Error("invalidate did not drop the cached project")
		}
		if fresh.Config.CompressionLevel != 19 {
			t.Errorf("reloaded level = %d, want 19", fresh.Config.CompressionLevel)
		}
	})

	t.Run("autosave lifecycle", func(t *testing.T) {
		r := NewRegistry(logger, gcd.RealClock{})
		defer r.Shutdown()
		root := initProject(t)

		if r.AutosaveRunning(root) {
			t.Error("running before start")
		}
		if _, err := r.StartAutosave(root, "timer"); err != nil {
			t.Fatalf("StartAutosave() error = %v", err)
		}
		if !r.AutosaveRunning(root) {
			t.Error("not running after start")
		}
		if _, err := r.StartAutosave(root, "timer"); err == nil {
			t.Error("second start succeeded")
		}
		if !r.StopAutosave(root) {
			t.Error("stop reported nothing running")
		}
		if r.StopAutosave(root) {
			t.Error("second stop reported a controller")
		}
	})
}
