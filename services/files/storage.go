package files

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/mozaika228/hephaestus/models"
)

// sniffLen is how much of the content is inspected for MIME detection
const sniffLen = 3072

// ErrTooLarge is returned when content exceeds the storage limit
var ErrTooLarge = errors.New("file exceeds the upload size limit")

// StoredFile describes content written by Storage.Save
type StoredFile struct {
	Path         string
	Size         int64
	SHA256       string
	DetectedType string
}

// Storage writes ingested files to a local directory
type Storage struct {
	dir      string
	maxBytes int64
}

// NewStorage creates a storage rooted at dir. maxBytes <= 0 means unlimited.
func NewStorage(dir string, maxBytes int64) *Storage {
	return &Storage{dir: dir, maxBytes: maxBytes}
}

// Save writes content to <dir>/<id>-<name>, hashing and sniffing it on the
// way through. A partial file is removed on failure.
func (s *Storage) Save(id, name string, content io.Reader) (StoredFile, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return StoredFile{}, fmt.Errorf("failed to create storage directory: %w", err)
	}

	path := filepath.Join(s.dir, id+"-"+safeName(name))
	f, err := os.Create(path)
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to create stored file: %w", err)
	}

	stored, err := s.write(f, content)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close stored file: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(path)
		return StoredFile{}, err
	}

	stored.Path = path
	return stored, nil
}

func (s *Storage) write(dst io.Writer, content io.Reader) (StoredFile, error) {
	src := content
	if s.maxBytes > 0 {
		src = io.LimitReader(content, s.maxBytes+1)
	}

	br := bufio.NewReaderSize(src, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return StoredFile{}, fmt.Errorf("failed to read upload: %w", err)
	}
	detected := mimetype.Detect(head).String()

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(dst, hash), br)
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to write stored file: %w", err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		return StoredFile{}, ErrTooLarge
	}

	return StoredFile{
		Size:         n,
		SHA256:       hex.EncodeToString(hash.Sum(nil)),
		DetectedType: detected,
	}, nil
}

// safeName keeps only the final path element of a client supplied name
func safeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" || name == "" {
		return models.DefaultUploadName
	}
	return name
}

// effectiveType prefers the declared type unless it is missing or generic
func effectiveType(declared, detected string) string {
	declared = strings.TrimSpace(declared)
	if declared == "" || declared == models.DefaultUploadType {
		if detected != "" {
			return detected
		}
		return models.DefaultUploadType
	}
	return declared
}
