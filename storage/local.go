package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	MaxImageSize = 2 << 20
	urlPrefix    = "/storage/"
)

var (
	ErrUnsupportedType = errors.New("image must be a jpeg, jpg, png or gif file")
	ErrTooLarge        = errors.New("image must not be larger than 2MB")
)

var allowedExt = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".gif":  true,
}

// LocalStore writes uploads below root and serves them under /storage/.
type LocalStore struct {
	root         string
	defaultImage string
	logger       *zap.Logger
}

func NewLocalStore(root, defaultImage string, logger *zap.Logger) *LocalStore {
	return &LocalStore{root: root, defaultImage: defaultImage, logger: logger}
}

func (s *LocalStore) Root() string         { return s.root }
func (s *LocalStore) DefaultImage() string { return s.defaultImage }

// Save stores the upload under subdir and returns its public URL.
func (s *LocalStore) Save(subdir string, fh *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedExt[ext] {
		return "", ErrUnsupportedType
	}
	if fh.Size > MaxImageSize {
		return "", ErrTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	return s.write(subdir, ext, io.LimitReader(src, MaxImageSize+1))
}

// write stores src under a fresh name. A failed write leaves nothing behind.
func (s *LocalStore) write(subdir, ext string, src io.Reader) (string, error) {
	dir := filepath.Join(s.root, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	name := uuid.NewString() + ext
	full := filepath.Join(dir, name)
	dst, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(full)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return urlPrefix + path.Join(subdir, name), nil
}

// Release removes a stored image. The default placeholder and URLs that
// were not issued by Save are left alone.
func (s *LocalStore) Release(url string) {
	if url == "" || url == s.defaultImage || !strings.HasPrefix(url, urlPrefix) {
		return
	}

	rel := filepath.FromSlash(strings.TrimPrefix(url, urlPrefix))
	full := filepath.Join(s.root, rel)
	root, err := filepath.Abs(s.root)
	if err != nil {
		return
	}
	abs, err := filepath.Abs(full)
	if err != nil || !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
		s.logger.Warn("Refusing to release image outside storage root", zap.String("url", url))
		return
	}

	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to release image", zap.String("url", url), zap.Error(err))
	}
}
