// Package receipts copies receipt images into the tracker's own storage.
package receipts

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"expensetracker/internal/log"
)

// DefaultMaxBytes is the size above which images are downscaled.
const DefaultMaxBytes = 1_000_000

const maxNameAttempts = 100

// ErrReceipt wraps every failure to store a receipt.
var ErrReceipt = errors.New("receipt copy failed")

// Store writes receipts into Dir as receipt_<millis><ext>, or
// receipt_<millis>_<n><ext> when that name is taken.
type Store struct {
	Dir      string
	MaxBytes int64
	Logger   *log.Logger
}

func New(dir string, maxBytes int64, logger *log.Logger) *Store {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{Dir: dir, MaxBytes: maxBytes, Logger: logger.WithComponent(log.ComponentReceipts)}
}

// FileName returns the stored name of a receipt taken at t.
func FileName(t time.Time, ext string) string {
	if ext == "" {
		ext = ".jpg"
	}
	return "receipt_" + strconv.FormatInt(t.UnixMilli(), 10) + strings.ToLower(ext)
}

// Save copies src into the store and returns the stored path. The source
// is left in place. Images over MaxBytes are downscaled; an image that cannot
// be decoded or re-encoded is copied as is. An existing receipt is never
// overwritten: a clashing name gets a numeric suffix.
func (s *Store) Save(src string, at time.Time) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create dir: %w", ErrReceipt, err)
	}
	fi, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrReceipt, err)
	}
	out, err := s.create(at, filepath.Ext(src))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrReceipt, err)
	}
	dst := out.Name()

	if err := s.write(out, src, fi.Size()); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("%w: %w", ErrReceipt, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("%w: %w", ErrReceipt, err)
	}
	return dst, nil
}

// Discard removes a stored receipt that no expense refers to.
func (s *Store) Discard(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: discard: %w", ErrReceipt, err)
	}
	return nil
}

// create opens a new receipt file exclusively.
func (s *Store) create(at time.Time, ext string) (*os.File, error) {
	name := FileName(at, ext)
	stem, suffix := strings.TrimSuffix(name, filepath.Ext(name)), filepath.Ext(name)
	for i := 0; i < maxNameAttempts; i++ {
		if i > 0 {
			name = stem + "_" + strconv.Itoa(i) + suffix
		}
		f, err := os.OpenFile(filepath.Join(s.Dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return f, err
	}
	return nil, fmt.Errorf("no free name for %s after %d attempts", FileName(at, ext), maxNameAttempts)
}

func (s *Store) write(out *os.File, src string, size int64) error {
	if size > s.MaxBytes {
		err := s.downscale(src, out, size)
		if err == nil {
			return nil
		}
		s.Logger.Warn("Receipt downscale failed, copying original",
			log.FieldReceipt, src, log.FieldError, err)
		if err := rewind(out); err != nil {
			return err
		}
	}
	return copyFile(src, out)
}

// SaveFrom stores an uploaded receipt. name only supplies the extension.
func (s *Store) SaveFrom(r io.Reader, name string, at time.Time) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create dir: %w", ErrReceipt, err)
	}
	tmp, err := os.CreateTemp(s.Dir, ".upload-*"+strings.ToLower(filepath.Ext(name)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrReceipt, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: read upload: %w", ErrReceipt, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrReceipt, err)
	}
	return s.Save(tmp.Name(), at)
}

// downscale scales the image area roughly in proportion to the byte budget.
func (s *Store) downscale(src string, out *os.File, size int64) error {
	format, err := imaging.FormatFromFilename(out.Name())
	if err != nil {
		return err
	}
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return err
	}
	scale := math.Sqrt(float64(s.MaxBytes) / float64(size))
	scale = math.Max(0.1, math.Min(scale, 0.95))
	w := int(math.Max(1, math.Round(float64(img.Bounds().Dx())*scale)))
	h := int(math.Max(1, math.Round(float64(img.Bounds().Dy())*scale)))
	img = imaging.Resize(img, w, h, imaging.Lanczos)
	return imaging.Encode(out, img, format, imaging.JPEGQuality(85))
}

func rewind(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.Seek(0, io.SeekStart)
	return err
}

func copyFile(src string, out io.Writer) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(out, in)
	return err
}
