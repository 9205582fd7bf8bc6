package database_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gencodedoc/internal/database"
	"gencodedoc/internal/gcd"
	"gencodedoc/internal/model"
)

func newDB(t *testing.T) *database.SQLiteDatabase {
	t.Helper()
	db, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteDatabase() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func blobLoader(t *testing.T) gcd.BlobLoader {
	t.Helper()
	return func(entry model.FileEntry) (*model.ContentBlob, error) {
		return &model.ContentBlob{
			Hash:         entry.Hash,
			Data:         []byte("content-" + entry.Hash),
			OriginalSize: entry.Size,
			StoredSize:   entry.Size,
			CreatedAt:    time.Now(),
		}, nil
	}
}

func mustCreate(t *testing.T, db *database.SQLiteDatabase, meta model.SnapshotMetadata, files []model.FileEntry) *model.SnapshotMetadata {
	t.Helper()
	created, err := db.CreateSnapshot(meta, files, blobLoader(t))
	if err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}
	return created
}

func testMeta(hash, tag string) model.SnapshotMetadata {
	return model.SnapshotMetadata{
		Hash:        hash,
		Tag:         tag,
		CreatedAt:   time.Now(),
		TriggerType: "manual",
	}
}

func testFiles(hashes ...string) []model.FileEntry {
	var files []model.FileEntry
	for i, h := range hashes {
		files = append(files, model.FileEntry{
			Path: fmt.Sprintf("file%d.txt", i),
			Hash: h,
			Size: 10,
			Mode: 0o644,
		})
	}
	return files
}

func TestSQLiteDatabase_CreateSnapshot(t *testing.T) {
	t.Run("assigns increasing ids and parent", func(t *testing.T) {
		db := newDB(t)

		first := mustCreate(t, db, testMeta("h1", ""), testFiles("a"))
		second := mustCreate(t, db, testMeta("h2", ""), testFiles("b"))

		if first.ID != 1 || second.ID != 2 {
			t.Errorf("ids = %d, %d; want 1, 2", first.ID, second.ID)
		}
		if first.ParentID != 0 {
			t.Errorf("first parent = %d, want 0", first.ParentID)
		}
		if second.ParentID != first.ID {
			t.Errorf("second parent = %d, want %d", second.ParentID, first.ID)
		}
	})

	t.Run("duplicate hash fails with ErrNoChanges", func(t *testing.T) {
		db := newDB(t)
		mustCreate(t, db, testMeta("same", ""), testFiles("a"))

		_, err := db.CreateSnapshot(testMeta("same", ""), testFiles("a"), blobLoader(t))
		if !errors.Is(err, gcd.ErrNoChanges) {
			t.Errorf("error = %v, want ErrNoChanges", err)
		}

		n, err := db.CountSnapshots(true)
		if err != nil {
			t.Fatalf("CountSnapshots() error = %v", err)
		}
		if n != 1 {
			t.Errorf("snapshot count = %d, want 1", n)
		}
	})

	t.Run("duplicate tag fails with ErrDuplicateTag", func(t *testing.T) {
		db := newDB(t)
		mustCreate(t, db, testMeta("h1", "v1"), testFiles("a"))

		_, err := db.CreateSnapshot(testMeta("h2", "v1"), testFiles("b"), blobLoader(t))
		if !errors.Is(err, gcd.ErrDuplicateTag) {
			t.Errorf("error = %v, want ErrDuplicateTag", err)
		}
	})

	t.Run("shared content is stored once and not recounted", func(t *testing.T) {
		db := newDB(t)

		loads := 0
		loader := func(entry model.FileEntry) (*model.ContentBlob, error) {
			loads++
			return blobLoader(t)(entry)
		}

		first, err := db.CreateSnapshot(testMeta("h1", ""), testFiles("shared", "only1"), loader)
		if err != nil {
			t.Fatalf("CreateSnapshot() error = %v", err)
		}
		second, err := db.CreateSnapshot(testMeta("h2", ""), testFiles("shared", "only2"), loader)
		if err != nil {
			t.Fatalf("CreateSnapshot() error = %v", err)
		}

		if loads != 3 {
			t.Errorf("blob loads = %d, want 3 (shared loaded once)", loads)
		}
		if first.CompressedSize != 20 || second.CompressedSize != 10 {
			t.Errorf("compressed sizes = %d, %d; want 20, 10", first.CompressedSize, second.CompressedSize)
		}
	})

	t.Run("loader failure rolls back everything", func(t *testing.T) {
		db := newDB(t)

		loader := func(entry model.FileEntry) (*model.ContentBlob, error) {
			return nil, errors.New("disk gone")
		}
		_, err := db.CreateSnapshot(testMeta("h1", "v1"), testFiles("a"), loader)
		if err == nil {
			t.Fatal("expected error")
		}

		n, _ := db.CountSnapshots(true)
		if n != 0 {
			t.Errorf("snapshot count = %d, want 0 after rollback", n)
		}
		exists, _ := db.ContentExists("a")
		if exists {
			t.Error("content persisted despite rollback")
		}
	})
}

func TestSQLiteDatabase_Lookups(t *testing.T) {
	db := newDB(t)
	mustCreate(t, db, testMeta("h1", "v1"), testFiles("a"))
	mustCreate(t, db, testMeta("h2", ""), testFiles("b"))

	t.Run("get by id", func(t *testing.T) {
		meta, err := db.GetSnapshot(1)
		if err != nil {
			t.Fatalf("GetSnapshot() error = %v", err)
		}
		if meta == nil || meta.Hash != "h1" {
			t.Errorf("got %+v, want hash h1", meta)
		}
	})

	t.Run("get by tag", func(t *testing.T) {
		meta, err := db.GetSnapshotByTag("v1")
		if err != nil {
			t.Fatalf("GetSnapshotByTag() error = %v", err)
		}
		if meta == nil || meta.ID != 1 {
			t.Errorf("got %+v, want id 1", meta)
		}
	})

	t.Run("missing returns nil without error", func(t *testing.T) {
		meta, err := db.GetSnapshot(99)
		if err != nil || meta != nil {
			t.Errorf("got (%+v, %v), want (nil, nil)", meta, err)
		}
		meta, err = db.GetSnapshotByTag("nope")
		if err != nil || meta != nil {
			t.Errorf("got (%+v, %v), want (nil, nil)", meta, err)
		}
	})

	t.Run("latest", func(t *testing.T) {
		meta, err := db.GetLatestSnapshot()
		if err != nil {
			t.Fatalf("GetLatestSnapshot() error = %v", err)
		}
		if meta == nil || meta.ID != 2 {
			t.Errorf("got %+v, want id 2", meta)
		}
	})

	t.Run("files come back ordered", func(t *testing.T) {
		files, err := db.GetSnapshotFiles(1)
		if err != nil {
			t.Fatalf("GetSnapshotFiles() error = %v", err)
		}
		if len(files) != 1 || files[0].Path != "file0.txt" {
			t.Errorf("got %+v", files)
		}
	})
}

func TestSQLiteDatabase_ListSnapshots(t *testing.T) {
	db := newDB(t)

	mustCreate(t, db, testMeta("h1", ""), testFiles("a"))
	auto := testMeta("h2", "")
	auto.IsAutosave = true
	auto.TriggerType = "timer"
	mustCreate(t, db, auto, testFiles("b"))
	mustCreate(t, db, testMeta("h3", ""), testFiles("c"))

	t.Run("newest first", func(t *testing.T) {
		metas, err := db.ListSnapshots(0, true)
		if err != nil {
			t.Fatalf("ListSnapshots() error = %v", err)
		}
		if len(metas) != 3 || metas[0].ID != 3 {
			t.Errorf("got %d snapshots, first id %d; want 3 with first id 3", len(metas), metas[0].ID)
		}
	})

	t.Run("autosave filter", func(t *testing.T) {
		metas, err := db.ListSnapshots(0, false)
		if err != nil {
			t.Fatalf("ListSnapshots() error = %v", err)
		}
		for _, m := range metas {
			if m.IsAutosave {
				t.Errorf("autosave snapshot %d leaked through filter", m.ID)
			}
		}
		if len(metas) != 2 {
			t.Errorf("got %d manual snapshots, want 2", len(metas))
		}
	})

	t.Run("limit", func(t *testing.T) {
		metas, err := db.ListSnapshots(1, true)
		if err != nil {
			t.Fatalf("ListSnapshots() error = %v", err)
		}
		if len(metas) != 1 {
			t.Errorf("got %d snapshots, want 1", len(metas))
		}
	})
}

func TestSQLiteDatabase_DeleteSnapshot(t *testing.T) {
	db := newDB(t)
	mustCreate(t, db, testMeta("h1", "v1"), testFiles("a"))

	if err := db.DeleteSnapshot(1); err != nil {
		t.Fatalf("DeleteSnapshot() error = %v", err)
	}

	files, err := db.GetSnapshotFiles(1)
	if err != nil {
		t.Fatalf("GetSnapshotFiles() error = %v", err)
	}
	if len(files) != 0 {
		t.Errorf("file links survived deletion: %+v", files)
	}

	// Blobs stay until orphan cleanup.
	exists, _ := db.ContentExists("a")
	if !exists {
		t.Error("content deleted with snapshot")
	}

	if err := db.DeleteSnapshot(1); !errors.Is(err, gcd.ErrSnapshotNotFound) {
		t.Errorf("second delete error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestSQLiteDatabase_AutosaveState(t *testing.T) {
	db := newDB(t)

	t.Run("empty store yields zero state", func(t *testing.T) {
		state, err := db.GetAutosaveState()
		if err != nil {
			t.Fatalf("GetAutosaveState() error = %v", err)
		}
		if state.LastSnapshotID != 0 || !state.LastSave.IsZero() {
			t.Errorf("got %+v, want zero state", state)
		}
	})

	t.Run("upsert and read back", func(t *testing.T) {
		now := time.Now().Truncate(time.Second)
		in := &model.AutosaveState{LastCheck: now, LastSave: now, LastSnapshotID: 7, FilesTracked: 3}
		if err := db.UpdateAutosaveState(in); err != nil {
			t.Fatalf("UpdateAutosaveState() error = %v", err)
		}

		state, err := db.GetAutosaveState()
		if err != nil {
			t.Fatalf("GetAutosaveState() error = %v", err)
		}
		if state.LastSnapshotID != 7 || state.FilesTracked != 3 {
			t.Errorf("got %+v", state)
		}

		in.LastSnapshotID = 8
		if err := db.UpdateAutosaveState(in); err != nil {
			t.Fatalf("UpdateAutosaveState() error = %v", err)
		}
		state, _ = db.GetAutosaveState()
		if state.LastSnapshotID != 8 {
			t.Errorf("update in place failed: %+v", state)
		}
	})
}

func TestSQLiteDatabase_Cleanup(t *testing.T) {
	t.Run("old autosaves keep newest N", func(t *testing.T) {
		db := newDB(t)

		for i := 0; i < 5; i++ {
			meta := testMeta(fmt.Sprintf("auto%d", i), "")
			meta.IsAutosave = true
			meta.CreatedAt = time.Now().Add(time.Duration(i) * time.Minute)
			mustCreate(t, db, meta, testFiles(fmt.Sprintf("c%d", i)))
		}
		mustCreate(t, db, testMeta("manual", ""), testFiles("m"))

		deleted, err := db.CleanupOldAutosaves(2)
		if err != nil {
			t.Fatalf("CleanupOldAutosaves() error = %v", err)
		}
		if deleted != 3 {
			t.Errorf("deleted = %d, want 3", deleted)
		}

		metas, _ := db.ListSnapshots(0, true)
		autosaves := 0
		for _, m := range metas {
			if m.IsAutosave {
				autosaves++
			}
		}
		if autosaves != 2 {
			t.Errorf("autosaves left = %d, want 2", autosaves)
		}
		if total, _ := db.CountSnapshots(true); total != 3 {
			t.Errorf("total = %d, want 3 (manual untouched)", total)
		}
	})

	t.Run("expired autosaves by age", func(t *testing.T) {
		db := newDB(t)

		old := testMeta("old", "")
		old.IsAutosave = true
		old.CreatedAt = time.Now().AddDate(0, 0, -10)
		mustCreate(t, db, old, testFiles("o"))

		fresh := testMeta("fresh", "")
		fresh.IsAutosave = true
		mustCreate(t, db, fresh, testFiles("f"))

		deleted, err := db.CleanupExpiredAutosaves(time.Now().AddDate(0, 0, -7))
		if err != nil {
			t.Fatalf("CleanupExpiredAutosaves() error = %v", err)
		}
		if deleted != 1 {
			t.Errorf("deleted = %d, want 1", deleted)
		}
	})

	t.Run("orphaned contents", func(t *testing.T) {
		db := newDB(t)

		mustCreate(t, db, testMeta("h1", ""), testFiles("a", "b"))
		if err := db.DeleteSnapshot(1); err != nil {
			t.Fatalf("DeleteSnapshot() error = %v", err)
		}

		deleted, err := db.CleanupOrphanedContents()
		if err != nil {
			t.Fatalf("CleanupOrphanedContents() error = %v", err)
		}
		if deleted != 2 {
			t.Errorf("deleted = %d, want 2", deleted)
		}
	})
}
