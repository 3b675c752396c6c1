package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/almsbox/internal/proof"
)

// Store keeps proof files in a single flat directory.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating proof directory: %w", err)
	}

	return &Store{dir: dir}, nil
}

var _ proof.Store = (*Store)(nil)

func (s *Store) Save(_ context.Context, filename string, r io.Reader) (proof.Artifact, error) {
	mediaType, body, err := proof.Detect(r)
	if err != nil {
		return proof.Artifact{}, err
	}

	locator := uuid.NewString() + strings.ToLower(filepath.Ext(filename))

	f, err := os.OpenFile(filepath.Join(s.dir, locator), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return proof.Artifact{}, fmt.Errorf("%w: creating file: %w", proof.ErrUnavailable, err)
	}
	defer f.Close()

	n, err := io.Copy(f, body)
	if err != nil {
		_ = os.Remove(f.Name())
		return proof.Artifact{}, fmt.Errorf("%w: writing file: %w", proof.ErrUnavailable, err)
	}

	return proof.Artifact{Locator: locator, MediaType: mediaType, Size: n}, nil
}

func (s *Store) Stat(ctx context.Context, locator string) (proof.Artifact, error) {
	rc, err := s.Open(ctx, locator)
	if err != nil {
		return proof.Artifact{}, err
	}
	defer rc.Close()

	mediaType, _, err := proof.Detect(rc)
	if err != nil {
		return proof.Artifact{}, fmt.Errorf("%w: %w", proof.ErrUnavailable, err)
	}

	a := proof.Artifact{Locator: locator, MediaType: mediaType}
	if f, ok := rc.(*os.File); ok {
		if info, err := f.Stat(); err == nil {
			a.Size = info.Size()
		}
	}

	return a, nil
}

func (s *Store) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	p, err := s.path(locator)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", proof.ErrNotFound, locator)
		}

		return nil, fmt.Errorf("%w: opening file: %w", proof.ErrUnavailable, err)
	}

	return f, nil
}

// path rejects anything that is not a bare file name inside the store directory.
func (s *Store) path(locator string) (string, error) {
	if locator == "" || locator != filepath.Base(locator) || strings.HasPrefix(locator, ".") {
		return "", fmt.Errorf("%w: %q", proof.ErrNotFound, locator)
	}

	return filepath.Join(s.dir, locator), nil
}
