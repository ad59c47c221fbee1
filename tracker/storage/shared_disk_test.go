package storage_test

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"thesis_tracker/tracker/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedDiskRoundTrip(t *testing.T) {
	ctx := context.Background()
	disk := storage.NewSharedDisk(t.TempDir())

	key := storage.AttachmentKey(uuid.New(), uuid.New(), uuid.New())

	exists, err := disk.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, disk.Write(ctx, key, strings.NewReader("chapter one")))

	exists, err = disk.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	file, err := disk.Read(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	file.Close()
	assert.Equal(t, "chapter one", string(data))

	require.NoError(t, disk.Write(ctx, key, strings.NewReader("v2")))
	file, err = disk.Read(ctx, key)
	require.NoError(t, err)
	data, err = io.ReadAll(file)
	require.NoError(t, err)
	file.Close()
	assert.Equal(t, "v2", string(data))

	require.NoError(t, disk.Delete(ctx, key))
	_, err = disk.Read(ctx, key)
	assert.True(t, errors.Is(err, storage.ErrObjectNotFound))
}

func TestSharedDiskUsage(t *testing.T) {
	dir := t.TempDir()
	disk := storage.NewSharedDisk(dir)

	usage, err := disk.Usage()
	require.NoError(t, err)
	assert.Greater(t, usage.TotalBytes, uint64(0))
	assert.LessOrEqual(t, usage.FreeBytes, usage.TotalBytes)
	assert.Equal(t, dir, disk.Location())
}

func TestAttachmentKeyLayout(t *testing.T) {
	thesis, submission, attachment := uuid.New(), uuid.New(), uuid.New()
	key := storage.AttachmentKey(thesis, submission, attachment)
	assert.Equal(t, "theses/"+thesis.String()+"/submissions/"+submission.String()+"/"+attachment.String(), key)
}

func TestSharedDiskRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	disk := storage.NewSharedDisk(t.TempDir())

	for _, key := range []string{"../outside", "theses/../../outside", "/etc/passwd"} {
		err := disk.Write(ctx, key, strings.NewReader("x"))
		assert.ErrorIs(t, err, storage.ErrInvalidKey, key)
	}
}

func TestSharedDiskDeletePrunesEmptyDirs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	disk := storage.NewSharedDisk(dir)

	thesis := uuid.New()
	first := storage.AttachmentKey(thesis, uuid.New(), uuid.New())
	second := storage.AttachmentKey(thesis, uuid.New(), uuid.New())
	require.NoError(t, disk.Write(ctx, first, strings.NewReader("a")))
	require.NoError(t, disk.Write(ctx, second, strings.NewReader("b")))

	require.NoError(t, disk.Delete(ctx, first))
	exists, err := disk.Exists(ctx, storage.ThesisPath(thesis))
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, disk.Delete(ctx, second))
	exists, err = disk.Exists(ctx, storage.ThesisPath(thesis))
	require.NoError(t, err)
	assert.False(t, exists)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
