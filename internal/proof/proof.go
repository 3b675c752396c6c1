// Package proof defines the storage contract for uploaded contribution evidence
// and the fixed media-type classification used by the transaction lifecycle.
package proof

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind is the declared classification of a proof artifact.
type Kind string

const (
	KindImage Kind = "image"
	KindPDF   Kind = "pdf"
	KindDoc   Kind = "doc"
)

var (
	ErrNotFound         = errors.New("proof not found")
	ErrUnavailable      = errors.New("proof store unavailable")
	ErrUnsupportedMedia = errors.New("unsupported proof media type")
)

// sniffLen matches the default read limit of mimetype.
const sniffLen = 3072

// Artifact describes a stored proof file.
type Artifact struct {
	Locator   string
	MediaType string
	Size      int64
}

// Store persists proof bytes and hands back a stable locator.
type Store interface {
	Save(ctx context.Context, filename string, r io.Reader) (Artifact, error)
	Stat(ctx context.Context, locator string) (Artifact, error)
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
}

func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindPDF, KindDoc:
		return true
	}

	return false
}

// KindFromMediaType maps a media type onto a proof kind.
func KindFromMediaType(mediaType string) (Kind, error) {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}

	switch {
	case mt == "application/pdf":
		return KindPDF, nil
	case strings.HasPrefix(mt, "image/"):
		return KindImage, nil
	case strings.Contains(mt, "word"), mt == "application/vnd.oasis.opendocument.text":
		return KindDoc, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnsupportedMedia, mediaType)
}

// ContentType picks the response content type for a download. Images get a
// more specific subtype from the locator's extension; that is display only.
func ContentType(kind Kind, locator string) string {
	switch kind {
	case KindPDF:
		return "application/pdf"
	case KindDoc:
		return "application/msword"
	case KindImage:
		switch strings.ToLower(path.Ext(locator)) {
		case ".jpg", ".jpeg":
			return "image/jpeg"
		case ".png":
			return "image/png"
		case ".gif":
			return "image/gif"
		}
	}

	return "application/octet-stream"
}

// Filename is the last path element of a locator.
func Filename(locator string) string {
	return path.Base(locator)
}

// Detect sniffs the media type from the head of r. The returned reader replays
// the consumed bytes followed by the rest of r.
func Detect(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)

	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, fmt.Errorf("reading proof header: %w", err)
	}

	head = head[:n]
	mt, _, _ := strings.Cut(mimetype.Detect(head).String(), ";")

	return strings.TrimSpace(mt), io.MultiReader(bytes.NewReader(head), r), nil
}
