//go:build bleve

package search

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/streamview/internal/storage"
)

func TestBleveEngineIndexesAndSearches(t *testing.T) {
	dir := t.TempDir()
	archive, err := storage.NewArchive(filepath.Join(dir, "capture.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })

	// Captured before the index exists, picked up by the reindex on open.
	first := msg(t, `{"topic":"orders","offset":"1","key":"alice","value":"golang tips"}`)
	require.NoError(t, archive.SaveMessage(&first))

	idxPath := filepath.Join(dir, "index.bleve")
	eng, err := NewBleveEngine(archive, idxPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	second := msg(t, `{"topic":"payments","offset":"2","key":"bob","value":"bleve full text search"}`)
	require.NoError(t, archive.SaveMessage(&second))
	require.NoError(t, eng.Index(&second))

	res, err := eng.Search("golang", 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "orders", res[0].Topic)
	assert.Equal(t, 1, res[0].Offset)
	require.NotNil(t, res[0].Message)
	v, _ := res[0].Message.Field("value")
	assert.Equal(t, "golang tips", v)

	res, err = eng.Search("sear", 10)
	require.NoError(t, err)
	require.Len(t, res, 1, "prefix matches")
	assert.Equal(t, 2, res[0].Offset)

	n, err := eng.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fi, err := os.Stat(idxPath)
	require.NoError(t, err)
	require.True(t, fi.IsDir())
}

func TestBleveEngineWithoutArchive(t *testing.T) {
	eng, err := NewBleveEngine(nil, filepath.Join(t.TempDir(), "idx"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	m := msg(t, `{"topic":"t","offset":5,"value":"standalone"}`)
	require.NoError(t, eng.Index(&m))

	res, err := eng.Search("standalone", 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Nil(t, res[0].Message)
	assert.Equal(t, 5, res[0].Offset)
}
