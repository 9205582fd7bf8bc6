package autosave

import (
	"errors"
	"testing"
	"time"

	"gencodedoc/internal/compress"
	"gencodedoc/internal/config"
	"gencodedoc/internal/fs"
	"gencodedoc/internal/gcd"
	"gencodedoc/internal/store"
	"gencodedoc/internal/testutil"
)

func newManager(t *testing.T, root string) *gcd.VersionManager {
	t.Helper()

	db := testutil.NewTestDatabase(t)
	compressor, err := compress.New(3)
	if err != nil {
		t.Fatal(err)
	}
	logger := gcd.NewNopLogger()
	cs := store.New(db, compressor, true, gcd.RealClock{})
	filter := fs.NewIgnoreFilter([]string{config.DefaultStoragePath}, nil, nil, nil)
	scanner := fs.NewScanner(root, filter, logger)
	return gcd.NewVersionManager(root, db, cs, scanner, logger, gcd.RealClock{})
}

func testConfig() config.AutosaveConfig {
	return config.AutosaveConfig{
		Mode:  ModeTimer,
		Timer: config.TimerConfig{IntervalSeconds: 1},
		Retention: config.RetentionConfig{
			MaxAutosaves: 2,
			KeepManual:   true,
		},
	}
}

func TestNewController(t *testing.T) {
	root := t.TempDir()
	mgr := newManager(t, root)

	t.Run("unknown mode fails", func(t *testing.T) {
		_, err := NewController(mgr, testConfig(), "sometimes", nil, gcd.NewNopLogger(), gcd.RealClock{})
		if !errors.Is(err, gcd.ErrInvalid) {
			t.Errorf("error = %v, want ErrInvalid", err)
		}
	})

	t.Run("mode falls back to config", func(t *testing.T) {
		c, err := NewController(mgr, testConfig(), "", nil, gcd.NewNopLogger(), gcd.RealClock{})
		if err != nil {
			t.Fatalf("NewController() error = %v", err)
		}
		if c.Mode() != ModeTimer {
			t.Errorf("mode = %q, want timer", c.Mode())
		}
	})

	t.Run("observer required outside timer mode", func(t *testing.T) {
		c, err := NewController(mgr, testConfig(), ModeHybrid, nil, gcd.NewNopLogger(), gcd.RealClock{})
		if err != nil {
			t.Fatalf("NewController() error = %v", err)
		}
		if err := c.Start(root); err == nil {
			t.Error("Start() succeeded without an observer")
			c.Stop()
		}
	})
}

func TestController_TimerMode(t *testing.T) {
	root := t.TempDir()
	mgr := newManager(t, root)
	testutil.WriteFile(t, root, "a.txt", "hello")

	c, err := NewController(mgr, testConfig(), ModeTimer, nil, gcd.NewNopLogger(), gcd.RealClock{})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	if err := c.Start(root); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !c.Running() {
		t.Error("Running() = false after Start")
	}

	// One tick fires after a second; give it two.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		metas, err := mgr.ListSnapshots(0, true)
		if err != nil {
			t.Fatalf("ListSnapshots() error = %v", err)
		}
		if len(metas) > 0 {
			if !metas[0].IsAutosave || metas[0].TriggerType != "timer" {
				t.Errorf("snapshot = %+v, want timer autosave", metas[0])
			}
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	metas, _ := mgr.ListSnapshots(0, true)
	if len(metas) == 0 {
		t.Fatal("timer never triggered a snapshot")
	}

	c.Stop()
	if c.Running() {
		t.Error("Running() = true after Stop")
	}

	// Stop again is a no-op.
	c.Stop()
}

func TestController_RetentionBound(t *testing.T) {
	root := t.TempDir()
	mgr := newManager(t, root)

	// One manual snapshot that retention must never touch.
	testutil.WriteFile(t, root, "base.txt", "manual")
	if _, err := mgr.CreateSnapshot(gcd.CreateOptions{Message: "manual"}); err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}

	cfg := testConfig()
	c, err := NewController(mgr, cfg, ModeTimer, nil, gcd.NewNopLogger(), gcd.RealClock{})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	// Drive four triggers directly, with a change before each.
	for i := 0; i < 4; i++ {
		testutil.WriteFile(t, root, "churn.txt", time.Now().String()+string(rune('a'+i)))
		if !c.trigger("timer") {
			t.Fatalf("trigger %d did not create a snapshot", i)
		}
	}

	metas, err := mgr.ListSnapshots(0, true)
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}

	autosaves, manuals := 0, 0
	for _, m := range metas {
		if m.IsAutosave {
			autosaves++
		} else {
			manuals++
		}
	}
	if autosaves > cfg.Retention.MaxAutosaves {
		t.Errorf("autosaves = %d, want <= %d", autosaves, cfg.Retention.MaxAutosaves)
	}
	if manuals != 1 {
		t.Errorf("manual snapshots = %d, want 1 untouched", manuals)
	}
}

func TestController_TriggerSwallowsNoChanges(t *testing.T) {
	root := t.TempDir()
	mgr := newManager(t, root)
	testutil.WriteFile(t, root, "a.txt", "same")

	c, err := NewController(mgr, testConfig(), ModeTimer, nil, gcd.NewNopLogger(), gcd.RealClock{})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	if !c.trigger("timer") {
		t.Fatal("first trigger failed")
	}
	// Unchanged tree: trigger reports false but must not panic or stop
	// the loop.
	if c.trigger("timer") {
		t.Error("second trigger created a snapshot of an unchanged tree")
	}
}
