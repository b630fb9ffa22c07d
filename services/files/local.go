// Package filesvc stores uploaded files under the media directory.
package filesvc

import (
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/educarcms/educar/core"
)

var (
	ErrTooLarge    = errors.New("file is too large")
	ErrInvalidPath = errors.New("invalid file path")
)

// LocalStorage writes uploads to the local filesystem. Stored paths are relative to root,
// slash separated, and safe to persist.
type LocalStorage struct {
	root    string
	maxSize int64
}

func NewLocalStorage(conf *core.Config) *LocalStorage {
	return &LocalStorage{root: conf.MediaDir, maxSize: conf.MaxUploadSize}
}

// Save copies fh into dir under a unique name and returns its stored path.
func (s *LocalStorage) Save(dir string, fh *multipart.FileHeader) (string, error) {
	if s.maxSize > 0 && fh.Size > s.maxSize {
		return "", ErrTooLarge
	}
	src, err := fh.Open()
	if err != nil {
		return "", errors.Wrap(err, "opening upload")
	}
	defer src.Close()

	rel := path.Join(cleanDir(dir), uuid.New().String()[:8]+"-"+cleanName(fh.Filename))
	dst := s.Path(rel)
	if err = os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", errors.Wrap(err, "creating upload dir")
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "creating file")
	}
	defer out.Close()

	// a client may lie about the size
	n, err := io.Copy(out, io.LimitReader(src, s.limit()+1))
	if err != nil {
		_ = os.Remove(dst)
		return "", errors.Wrap(err, "writing file")
	}
	if s.maxSize > 0 && n > s.maxSize {
		_ = out.Close()
		_ = os.Remove(dst)
		return "", ErrTooLarge
	}
	return rel, nil
}

// Delete removes a stored file. Missing files are ignored.
func (s *LocalStorage) Delete(rel string) error {
	if rel == "" {
		return nil
	}
	if strings.Contains(rel, "..") {
		return ErrInvalidPath
	}
	if err := os.Remove(s.Path(rel)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing file")
	}
	return nil
}

// Path returns the filesystem path of a stored file.
func (s *LocalStorage) Path(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

func (s *LocalStorage) limit() int64 {
	if s.maxSize <= 0 {
		return 1<<63 - 2
	}
	return s.maxSize
}

func cleanDir(dir string) string {
	parts := strings.Split(dir, "/")
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = core.Slugify(p); p != "" {
			clean = append(clean, p)
		}
	}
	return path.Join(clean...)
}

// cleanName slugifies the base name of filename and keeps its extension.
func cleanName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(base))
	name := core.Slugify(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" {
		name = "file"
	}
	if ext != "" && core.Slugify(ext[1:]) != ext[1:] {
		ext = ""
	}
	return name + ext
}
