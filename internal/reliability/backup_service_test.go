package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/alphaledger/internal/database"
)

type mockObjectStore struct {
	uploads map[string][]byte
	objects []types.Object
	deleted []string
	listErr error
}

func newMockObjectStore() *mockObjectStore {
	return &mockObjectStore{uploads: make(map[string][]byte)}
}

func (m *mockObjectStore) Upload(ctx context.Context, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.uploads[key] = data
	return nil
}

func (m *mockObjectStore) List(ctx context.Context, prefix string) ([]types.Object, error) {
	return m.objects, m.listErr
}

func (m *mockObjectStore) Delete(ctx context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

func backupObject(timestamp string, size int64) types.Object {
	return types.Object{
		Key:  aws.String(backupPrefix + timestamp + ".tar.gz"),
		Size: aws.Int64(size),
	}
}

func TestCreateAndUploadBackup(t *testing.T) {
	dir := t.TempDir()
	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	store := newMockObjectStore()
	svc := NewBackupService(store, map[string]*database.DB{"cache": db}, dir, zerolog.Nop())

	require.NoError(t, svc.CreateAndUploadBackup(context.Background()))

	require.Len(t, store.uploads, 1)
	for key, blob := range store.uploads {
		assert.Contains(t, key, backupPrefix)
		assert.Contains(t, key, ".tar.gz")

		// Archive must contain the database copy and the metadata file.
		names := archiveEntries(t, blob)
		assert.Contains(t, names, "cache.db")
		assert.Contains(t, names, "backup-metadata.json")
	}
}

func archiveEntries(t *testing.T, blob []byte) []string {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	require.NoError(t, err)
	defer gz.Close()

	var names []string
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, header.Name)
	}
	return names
}

func TestListBackupsParsesAndSorts(t *testing.T) {
	store := newMockObjectStore()
	store.objects = []types.Object{
		backupObject("2026-08-01-120000", 100),
		backupObject("2026-08-20-120000", 200),
		{Key: aws.String("unrelated-file.txt"), Size: aws.Int64(5)},
		{Key: aws.String(backupPrefix + "garbage.tar.gz"), Size: aws.Int64(5)},
	}

	svc := NewBackupService(store, nil, t.TempDir(), zerolog.Nop())

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 2, "non-backup and unparseable keys are skipped")
	assert.Equal(t, backupPrefix+"2026-08-20-120000.tar.gz", backups[0].Filename, "newest first")
}

func TestRotateOldBackupsKeepsMinimum(t *testing.T) {
	store := newMockObjectStore()
	store.objects = []types.Object{
		backupObject("2020-01-01-120000", 1),
		backupObject("2020-01-02-120000", 1),
		backupObject("2020-01-03-120000", 1),
	}

	svc := NewBackupService(store, nil, t.TempDir(), zerolog.Nop())

	require.NoError(t, svc.RotateOldBackups(context.Background(), 30))
	assert.Empty(t, store.deleted, "the newest three are always retained")
}

func TestRotateOldBackupsDeletesExpired(t *testing.T) {
	recent := time.Now().Format("2006-01-02-150405")
	store := newMockObjectStore()
	store.objects = []types.Object{
		backupObject(recent, 1),
		backupObject("2020-01-04-120000", 1),
		backupObject("2020-01-03-120000", 1),
		backupObject("2020-01-02-120000", 1),
		backupObject("2020-01-01-120000", 1),
	}

	svc := NewBackupService(store, nil, t.TempDir(), zerolog.Nop())

	require.NoError(t, svc.RotateOldBackups(context.Background(), 30))
	assert.Equal(t, []string{
		backupPrefix + "2020-01-02-120000.tar.gz",
		backupPrefix + "2020-01-01-120000.tar.gz",
	}, store.deleted)
}

func TestRotateOldBackupsRetentionZeroKeepsEverything(t *testing.T) {
	store := newMockObjectStore()
	store.objects = []types.Object{
		backupObject("2020-01-01-120000", 1),
		backupObject("2020-01-02-120000", 1),
		backupObject("2020-01-03-120000", 1),
		backupObject("2020-01-04-120000", 1),
	}

	svc := NewBackupService(store, nil, t.TempDir(), zerolog.Nop())

	require.NoError(t, svc.RotateOldBackups(context.Background(), 0))
	assert.Empty(t, store.deleted)
}

func TestRotateOldBackupsListFailure(t *testing.T) {
	store := newMockObjectStore()
	store.listErr = fmt.Errorf("bucket unavailable")

	svc := NewBackupService(store, nil, t.TempDir(), zerolog.Nop())
	assert.Error(t, svc.RotateOldBackups(context.Background(), 30))
}
