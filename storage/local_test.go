package storage

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("image", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(MaxImageSize*2))
	return req.MultipartForm.File["image"][0]
}

func TestLocalStore_SaveAndRelease(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root, "/logo.jpg", zaptest.NewLogger(t))

	url, err := store.Save("products", fileHeader(t, "crepe.PNG", []byte("png-bytes")))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/storage/products/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	onDisk := filepath.Join(root, strings.TrimPrefix(url, "/storage/"))
	data, err := os.ReadFile(onDisk)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	store.Release(url)
	_, err = os.Stat(onDisk)
	assert.True(t, os.IsNotExist(err))

	// releasing twice is harmless
	store.Release(url)
}

func TestLocalStore_RejectsBadUploads(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "/logo.jpg", zaptest.NewLogger(t))

	_, err := store.Save("products", fileHeader(t, "notes.txt", []byte("x")))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	big := bytes.Repeat([]byte("a"), MaxImageSize+1)
	_, err = store.Save("products", fileHeader(t, "big.jpg", big))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestLocalStore_ReleaseKeepsForeignFiles(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(filepath.Join(root, "storage"), "/logo.jpg", zaptest.NewLogger(t))

	outside := filepath.Join(root, "secret.jpg")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	store.Release("/logo.jpg")
	store.Release("https://cdn.example.com/a.jpg")
	store.Release("/storage/../secret.jpg")

	_, err := os.Stat(outside)
	assert.NoError(t, err)
}

func TestLocalStore_FailedWriteLeavesNoFile(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root, "/logo.jpg", zaptest.NewLogger(t))

	src := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(errors.New("connection reset")))
	_, err := store.write("products", ".png", src)
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "products"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
