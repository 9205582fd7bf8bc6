package gcd_test

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"gencodedoc/internal/gcd"
	"gencodedoc/internal/model"
	"gencodedoc/internal/testutil"
)

func TestVersionManager_CreateSnapshot(t *testing.T) {
	t.Run("first snapshot records every file", func(t *testing.T) {
		p := testutil.NewTestProject(t)
		testutil.WriteFile(t, p.Root, "a.txt", "hello")
		testutil.WriteFile(t, p.Root, "b/c.py", "print(1)")

		snap, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Message: "first", Tag: "v1"})
		if err != nil {
			t.Fatalf("CreateSnapshot() error = %v", err)
		}

		if snap.Metadata.ID != 1 {
			t.Errorf("id = %d, want 1", snap.Metadata.ID)
		}
		if snap.Metadata.FilesCount != 2 {
			t.Errorf("files count = %d, want 2", snap.Metadata.FilesCount)
		}
		if snap.Metadata.TotalSize != int64(len("hello")+len("print(1)")) {
			t.Errorf("total size = %d", snap.Metadata.TotalSize)
		}

		files, err := p.DB.GetSnapshotFiles(1)
		if err != nil {
			t.Fatalf("GetSnapshotFiles() error = %v", err)
		}
		if len(files) != 2 {
			t.Errorf("snapshot_files rows = %d, want 2", len(files))
		}
	})

	t.Run("unchanged tree fails with ErrNoChanges", func(t *testing.T) {
		p := testutil.NewTestProject(t)
		testutil.WriteFile(t, p.Root, "a.txt", "hello")

		if _, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Tag: "v1"}); err != nil {
			t.Fatalf("CreateSnapshot() error = %v", err)
		}

		_, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Tag: "v3"})
		if !errors.Is(err, gcd.ErrNoChanges) {
			t.Errorf("error = %v, want ErrNoChanges", err)
		}

		n, _ := p.Manager.CountSnapshots(true)
		if n != 1 {
			t.Errorf("snapshot count = %d, want 1", n)
		}
	})

	t.Run("reused tag fails with ErrDuplicateTag", func(t *testing.T) {
		p := testutil.NewTestProject(t)
		testutil.WriteFile(t, p.Root, "a.txt", "hello")

		if _, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Tag: "v1"}); err != nil {
			t.Fatalf("CreateSnapshot() error = %v", err)
		}
		testutil.WriteFile(t, p.Root, "a.txt", "changed")

		_, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Tag: "v1"})
		if !errors.Is(err, gcd.ErrDuplicateTag) {
			t.Errorf("error = %v, want ErrDuplicateTag", err)
		}
	})

	t.Run("tag current is rejected", func(t *testing.T) {
		p := testutil.NewTestProject(t)
		testutil.WriteFile(t, p.Root, "a.txt", "hello")

		_, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Tag: "current"})
		if !errors.Is(err, gcd.ErrInvalid) {
			t.Errorf("error = %v, want ErrInvalid", err)
		}
	})

	t.Run("content is deduplicated across snapshots", func(t *testing.T) {
		p := testutil.NewTestProject(t)
		testutil.WriteFile(t, p.Root, "a.txt", "hello")
		testutil.WriteFile(t, p.Root, "b/c.py", "print(1)")

		if _, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Tag: "v1"}); err != nil {
			t.Fatalf("CreateSnapshot() error = %v", err)
		}
		testutil.WriteFile(t, p.Root, "a.txt", "hello!")
		snap2, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Tag: "v2"})
		if err != nil {
			t.Fatalf("CreateSnapshot() error = %v", err)
		}
		if snap2.Metadata.ID != 2 {
			t.Errorf("id = %d, want 2", snap2.Metadata.ID)
		}

		// Two versions of a.txt plus the shared b/c.py: three blobs.
		hashes := make(map[string]struct{})
		for id := int64(1); id <= 2; id++ {
			files, err := p.DB.GetSnapshotFiles(id)
			if err != nil {
				t.Fatalf("GetSnapshotFiles(%d) error = %v", id, err)
			}
			for _, f := range files {
				hashes[f.Hash] = struct{}{}
				exists, err := p.DB.ContentExists(f.Hash)
				if err != nil || !exists {
					t.Errorf("blob for %s missing (err=%v)", f.Path, err)
				}
			}
		}
		if len(hashes) != 3 {
			t.Errorf("distinct hashes = %d, want 3", len(hashes))
		}
	})
}

func TestSnapshotHash(t *testing.T) {
	files := []model.FileEntry{
		{Path: "a.txt", Hash: "h1"},
		{Path: "b.txt", Hash: "h2"},
		{Path: "c/d.txt", Hash: "h3"},
	}

	t.Run("invariant under permutation", func(t *testing.T) {
		want := gcd.SnapshotHash(files)
		for i := 0; i < 10; i++ {
			shuffled := make([]model.FileEntry, len(files))
			copy(shuffled, files)
			rand.Shuffle(len(shuffled), func(a, b int) {
				shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
			})
			if got := gcd.SnapshotHash(shuffled); got != want {
				t.Fatalf("hash changed under permutation: %s != %s", got, want)
			}
		}
	})

	t.Run("sensitive to content hashes", func(t *testing.T) {
		changed := []model.FileEntry{
			{Path: "a.txt", Hash: "h1-changed"},
			{Path: "b.txt", Hash: "h2"},
			{Path: "c/d.txt", Hash: "h3"},
		}
		if gcd.SnapshotHash(files) == gcd.SnapshotHash(changed) {
			t.Error("hash ignored content change")
		}
	})
}

func TestVersionManager_GetSnapshot(t *testing.T) {
	p := testutil.NewTestProject(t)
	testutil.WriteFile(t, p.Root, "a.txt", "hello")
	if _, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Tag: "v1"}); err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}

	t.Run("by id", func(t *testing.T) {
		snap, err := p.Manager.GetSnapshot("1")
		if err != nil {
			t.Fatalf("GetSnapshot() error = %v", err)
		}
		if snap == nil || snap.Metadata.Tag != "v1" {
			t.Errorf("got %+v", snap)
		}
	})

	t.Run("by tag", func(t *testing.T) {
		snap, err := p.Manager.GetSnapshot("v1")
		if err != nil {
			t.Fatalf("GetSnapshot() error = %v", err)
		}
		if snap == nil || snap.Metadata.ID != 1 {
			t.Errorf("got %+v", snap)
		}
	})

	t.Run("missing returns nil", func(t *testing.T) {
		snap, err := p.Manager.GetSnapshot("nope")
		if err != nil || snap != nil {
			t.Errorf("got (%+v, %v)", snap, err)
		}
	})
}

func TestVersionManager_Diff(t *testing.T) {
	p := testutil.NewTestProject(t)
	testutil.WriteFile(t, p.Root, "a.txt", "hello")
	testutil.WriteFile(t, p.Root, "b/c.py", "print(1)")
	if _, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Tag: "v1"}); err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}
	testutil.WriteFile(t, p.Root, "a.txt", "hello!")
	if _, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Tag: "v2"}); err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}

	t.Run("modified file between tags", func(t *testing.T) {
		diff, err := p.Manager.Diff("v1", "v2", nil)
		if err != nil {
			t.Fatalf("Diff() error = %v", err)
		}
		if len(diff.FilesAdded) != 0 || len(diff.FilesRemoved) != 0 {
			t.Errorf("added/removed = %v/%v, want empty", diff.FilesAdded, diff.FilesRemoved)
		}
		if len(diff.FilesModified) != 1 || diff.FilesModified[0].Path != "a.txt" {
			t.Errorf("modified = %+v", diff.FilesModified)
		}
		if diff.TotalChanges != 1 {
			t.Errorf("total changes = %d, want 1", diff.TotalChanges)
		}
		if diff.Significance != 0.5 {
			t.Errorf("significance = %v, want 0.5", diff.Significance)
		}
	})

	t.Run("set symmetry", func(t *testing.T) {
		testutil.WriteFile(t, p.Root, "new.txt", "fresh")
		if _, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Tag: "v3"}); err != nil {
			t.Fatalf("CreateSnapshot() error = %v", err)
		}

		forward, err := p.Manager.Diff("v2", "v3", nil)
		if err != nil {
			t.Fatalf("Diff() error = %v", err)
		}
		backward, err := p.Manager.Diff("v3", "v2", nil)
		if err != nil {
			t.Fatalf("Diff() error = %v", err)
		}
		if len(forward.FilesAdded) != len(backward.FilesRemoved) {
			t.Errorf("added/removed asymmetry: %v vs %v", forward.FilesAdded, backward.FilesRemoved)
		}
		for i := range forward.FilesAdded {
			if forward.FilesAdded[i] != backward.FilesRemoved[i] {
				t.Errorf("asymmetric at %d: %s vs %s", i, forward.FilesAdded[i], backward.FilesRemoved[i])
			}
		}
	})

	t.Run("self diff is empty", func(t *testing.T) {
		diff, err := p.Manager.Diff("v1", "v1", nil)
		if err != nil {
			t.Fatalf("Diff() error = %v", err)
		}
		if diff.TotalChanges != 0 {
			t.Errorf("total changes = %d, want 0", diff.TotalChanges)
		}
	})

	t.Run("against the working tree", func(t *testing.T) {
		testutil.WriteFile(t, p.Root, "live.txt", "only on disk")
		defer os.Remove(filepath.Join(p.Root, "live.txt"))

		diff, err := p.Manager.Diff("v3", gcd.CurrentRef, nil)
		if err != nil {
			t.Fatalf("Diff() error = %v", err)
		}
		found := false
		for _, path := range diff.FilesAdded {
			if path == "live.txt" {
				found = true
			}
		}
		if !found {
			t.Errorf("live file not in added set: %v", diff.FilesAdded)
		}
		if diff.ToSnapshot != 0 {
			t.Errorf("to snapshot = %d, want 0 for working tree", diff.ToSnapshot)
		}
	})

	t.Run("filters narrow the result", func(t *testing.T) {
		diff, err := p.Manager.Diff("v1", "v2", []string{"b/*"})
		if err != nil {
			t.Fatalf("Diff() error = %v", err)
		}
		if diff.TotalChanges != 0 {
			t.Errorf("filtered total = %d, want 0", diff.TotalChanges)
		}
	})
}

func TestVersionManager_Restore(t *testing.T) {
	t.Run("round-trip preserves path, hash, size and mode", func(t *testing.T) {
		p := testutil.NewTestProject(t)
		testutil.WriteFile(t, p.Root, "a.txt", "hello")
		testutil.WriteFile(t, p.Root, "b/c.py", "print(1)")

		snap, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Tag: "v1"})
		if err != nil {
			t.Fatalf("CreateSnapshot() error = %v", err)
		}

		target := t.TempDir()
		report, err := p.Manager.Restore("v1", target, true, nil)
		if err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if report.Restored != 2 || report.Skipped != 0 {
			t.Errorf("report = %+v", report)
		}

		for _, f := range snap.Files {
			abs := filepath.Join(target, filepath.FromSlash(f.Path))
			data, err := os.ReadFile(abs)
			if err != nil {
				t.Fatalf("reading %s: %v", f.Path, err)
			}
			if int64(len(data)) != f.Size {
				t.Errorf("%s size = %d, want %d", f.Path, len(data), f.Size)
			}
			info, _ := os.Stat(abs)
			if uint32(info.Mode().Perm()) != f.Mode {
				t.Errorf("%s mode = %o, want %o", f.Path, info.Mode().Perm(), f.Mode)
			}
		}
	})

	t.Run("partial restore by filter", func(t *testing.T) {
		p := testutil.NewTestProject(t)
		testutil.WriteFile(t, p.Root, "a.txt", "hello")
		testutil.WriteFile(t, p.Root, "b/c.py", "print(1)")
		if _, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Tag: "v1"}); err != nil {
			t.Fatalf("CreateSnapshot() error = %v", err)
		}

		if err := os.Remove(filepath.Join(p.Root, "a.txt")); err != nil {
			t.Fatal(err)
		}

		report, err := p.Manager.Restore("v1", "", true, []string{"a.txt"})
		if err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if report.Restored != 1 || report.Skipped != 0 {
			t.Errorf("report = %+v", report)
		}

		data, err := os.ReadFile(filepath.Join(p.Root, "a.txt"))
		if err != nil {
			t.Fatalf("reading restored file: %v", err)
		}
		if string(data) != "hello" {
			t.Errorf("content = %q, want hello", data)
		}
	})

	t.Run("existing files are skipped without force", func(t *testing.T) {
		p := testutil.NewTestProject(t)
		testutil.WriteFile(t, p.Root, "a.txt", "hello")
		if _, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Tag: "v1"}); err != nil {
			t.Fatalf("CreateSnapshot() error = %v", err)
		}
		testutil.WriteFile(t, p.Root, "a.txt", "local edits")

		report, err := p.Manager.Restore("v1", "", false, nil)
		if err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if report.Skipped != 1 || report.Restored != 0 {
			t.Errorf("report = %+v", report)
		}

		data, _ := os.ReadFile(filepath.Join(p.Root, "a.txt"))
		if string(data) != "local edits" {
			t.Error("unforced restore overwrote local edits")
		}
	})
}

func TestVersionManager_FileAccess(t *testing.T) {
	p := testutil.NewTestProject(t)
	testutil.WriteFile(t, p.Root, "a.txt", "hello")
	testutil.WriteFile(t, p.Root, "b/c.py", "print(1)")
	if _, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Tag: "v1"}); err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}

	t.Run("file content at version", func(t *testing.T) {
		data, text, isText, err := p.Manager.GetFileAtVersion("v1", "a.txt")
		if err != nil {
			t.Fatalf("GetFileAtVersion() error = %v", err)
		}
		if string(data) != "hello" || !isText || text != "hello" {
			t.Errorf("got (%q, %q, %v)", data, text, isText)
		}
	})

	t.Run("missing snapshot", func(t *testing.T) {
		_, _, _, err := p.Manager.GetFileAtVersion("v9", "a.txt")
		if !errors.Is(err, gcd.ErrSnapshotNotFound) {
			t.Errorf("error = %v, want ErrSnapshotNotFound", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, _, err := p.Manager.GetFileAtVersion("v1", "nope.txt")
		if !errors.Is(err, gcd.ErrFileNotInSnapshot) {
			t.Errorf("error = %v, want ErrFileNotInSnapshot", err)
		}
	})

	t.Run("list with pattern", func(t *testing.T) {
		files, err := p.Manager.ListFilesAtVersion("v1", "b/*")
		if err != nil {
			t.Fatalf("ListFilesAtVersion() error = %v", err)
		}
		if len(files) != 1 || files[0].Path != "b/c.py" {
			t.Errorf("got %+v", files)
		}
	})
}

func TestVersionManager_Cleanup(t *testing.T) {
	p := testutil.NewTestProject(t)
	testutil.WriteFile(t, p.Root, "a.txt", "hello")
	if _, err := p.Manager.CreateSnapshot(gcd.CreateOptions{Tag: "v1"}); err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}

	if err := p.Manager.DeleteSnapshot("v1"); err != nil {
		t.Fatalf("DeleteSnapshot() error = %v", err)
	}

	n, err := p.Manager.CleanupOrphanedContents()
	if err != nil {
		t.Fatalf("CleanupOrphanedContents() error = %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}
