package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	inMemory      bool
	checkpointed  int
	closed        int
	checkpointErr error
}

func (s *fakeStore) Checkpoint() error {
	s.checkpointed++
	return s.checkpointErr
}

func (s *fakeStore) Close() error {
	s.closed++
	return nil
}

func (s *fakeStore) InMemory() bool { return s.inMemory }

type fixture struct {
	manager *Manager
	store   *fakeStore
	dbPath  string
	dir     string
	exited  bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "database.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("live-database"), 0644))

	store := &fakeStore{}
	f := &fixture{
		store:  store,
		dbPath: dbPath,
		dir:    filepath.Join(dir, "backups"),
	}
	f.manager = NewManager(store, dbPath, f.dir)
	f.manager.sleep = func(time.Duration) {}
	f.manager.exit = func() { f.exited = true }
	return f
}

func TestDatabasePath(t *testing.T) {
	assert.Equal(t, "/data/db.sqlite", DatabasePath("file:/data/db.sqlite?cache=shared"))
	assert.Equal(t, "/data/db.sqlite", DatabasePath("/data/db.sqlite"))
	assert.Equal(t, "db.sqlite", DatabasePath("file:db.sqlite"))
}

func TestCreateBackup(t *testing.T) {
	t.Run("SnapshotsAfterCheckpoint", func(t *testing.T) {
		f := newFixture(t)

		info, err := f.manager.CreateBackup()
		require.NoError(t, err)

		assert.Equal(t, 1, f.store.checkpointed)
		assert.Equal(t, "MANUAL", info.Type)
		assert.Contains(t, info.FileName, "komga_backup_")
		assert.Equal(t, int64(len("live-database")), info.SizeBytes)

		data, err := os.ReadFile(info.FilePath)
		require.NoError(t, err)
		assert.Equal(t, "live-database", string(data))
	})

	t.Run("InMemoryStoreRefused", func(t *testing.T) {
		f := newFixture(t)
		f.store.inMemory = true

		_, err := f.manager.CreateBackup()
		assert.ErrorIs(t, err, ErrInMemory)
	})

	t.Run("ReplacesExistingSnapshotOfSameSecond", func(t *testing.T) {
		f := newFixture(t)
		f.manager.now = func() time.Time {
			return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		}

		_, err := f.manager.CreateBackup()
		require.NoError(t, err)
		_, err = f.manager.CreateBackup()
		require.NoError(t, err)

		backups, err := f.manager.ListBackups()
		require.NoError(t, err)
		assert.Len(t, backups, 1)
	})
}

func TestListBackups(t *testing.T) {
	t.Run("EmptyWithoutDirectory", func(t *testing.T) {
		f := newFixture(t)
		backups, err := f.manager.ListBackups()
		require.NoError(t, err)
		assert.Empty(t, backups)
	})

	t.Run("NewestFirstAndOnlyDBFiles", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, os.MkdirAll(f.dir, 0755))

		old := filepath.Join(f.dir, "komga_backup_20250101_000000.db")
		recent := filepath.Join(f.dir, "komga_backup_20250601_000000.db")
		require.NoError(t, os.WriteFile(old, []byte("old"), 0644))
		require.NoError(t, os.WriteFile(recent, []byte("recent"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(f.dir, "notes.txt"), []byte("x"), 0644))
		require.NoError(t, os.Chtimes(old, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)))

		backups, err := f.manager.ListBackups()
		require.NoError(t, err)
		require.Len(t, backups, 2)
		assert.Equal(t, "komga_backup_20250601_000000.db", backups[0].FileName)
	})
}

func TestDeleteBackup(t *testing.T) {
	t.Run("DeletesContainedFile", func(t *testing.T) {
		f := newFixture(t)
		info, err := f.manager.CreateBackup()
		require.NoError(t, err)

		ok, err := f.manager.DeleteBackup(info.FileName)
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = os.Stat(info.FilePath)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("MissingFileReportsFalse", func(t *testing.T) {
		f := newFixture(t)
		ok, err := f.manager.DeleteBackup("komga_backup_nope.db")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("TraversalIsAccessDenied", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.DeleteBackup("../database.db")
		assert.ErrorIs(t, err, ErrAccessDenied)
	})
}

func TestCleanOldBackups(t *testing.T) {
	seed := func(t *testing.T, f *fixture, count int) {
		t.Helper()
		require.NoError(t, os.MkdirAll(f.dir, 0755))
		base := time.Now().Add(-time.Duration(count) * time.Hour)
		for i := 0; i < count; i++ {
			path := filepath.Join(f.dir, filepath.Base(
				"komga_backup_2025010"+string(rune('0'+i))+"_000000.db"))
			require.NoError(t, os.WriteFile(path, []byte("b"), 0644))
			stamp := base.Add(time.Duration(i) * time.Hour)
			require.NoError(t, os.Chtimes(path, stamp, stamp))
		}
	}

	t.Run("KeepsNewest", func(t *testing.T) {
		f := newFixture(t)
		seed(t, f, 5)

		deleted, err := f.manager.CleanOldBackups(2)
		require.NoError(t, err)
		assert.Equal(t, 3, deleted)

		backups, err := f.manager.ListBackups()
		require.NoError(t, err)
		assert.Len(t, backups, 2)
	})

	t.Run("KeepZeroDeletesEverything", func(t *testing.T) {
		f := newFixture(t)
		seed(t, f, 3)

		deleted, err := f.manager.CleanOldBackups(0)
		require.NoError(t, err)
		assert.Equal(t, 3, deleted)
	})

	t.Run("KeepBeyondCountDeletesNothing", func(t *testing.T) {
		f := newFixture(t)
		seed(t, f, 2)

		deleted, err := f.manager.CleanOldBackups(10)
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})
}

func TestRestoreBackup(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		f := newFixture(t)
		info, err := f.manager.CreateBackup()
		require.NoError(t, err)

		// live database diverges, sidecars appear
		require.NoError(t, os.WriteFile(f.dbPath, []byte("diverged"), 0644))
		require.NoError(t, os.WriteFile(f.dbPath+"-wal", []byte("wal"), 0644))
		require.NoError(t, os.WriteFile(f.dbPath+"-shm", []byte("shm"), 0644))

		result, err := f.manager.RestoreBackup(info.FileName)
		require.NoError(t, err)
		assert.True(t, result.RequiresRestart)
		assert.Equal(t, info.FileName, result.BackupFileName)
		assert.True(t, f.exited)
		assert.GreaterOrEqual(t, f.store.closed, 1)

		data, err := os.ReadFile(f.dbPath)
		require.NoError(t, err)
		assert.Equal(t, "live-database", string(data))

		_, err = os.Stat(f.dbPath + "-wal")
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(f.dbPath + "-shm")
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("MissingBackup", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.RestoreBackup("komga_backup_nope.db")
		assert.ErrorIs(t, err, ErrBackupNotFound)
	})

	t.Run("TraversalIsAccessDenied", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.RestoreBackup("../../etc/passwd")
		assert.ErrorIs(t, err, ErrAccessDenied)
	})
}
