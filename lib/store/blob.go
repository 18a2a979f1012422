package store

import (
	"encoding/base32"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/Sirupsen/logrus"

	"github.com/nntparchive/nntpd/lib/model"
)

// BlobStore is the optional body blob store: a pure function from
// message-id to filesystem path plus read/write primitives, for
// bodies kept outside the metadata database.
type BlobStore interface {
	Path(id model.MessageID) string
	Open(id model.MessageID) (io.ReadCloser, error)
	Create(id model.MessageID) (io.WriteCloser, error)
	Has(id model.MessageID) bool
}

// FilesystemBlobStore fans bodies out two levels deep by the base32
// encoding of the message-id, so the mapping is deterministic and
// collision-free on case-insensitive filesystems (base32's alphabet
// is already uppercase-only, so no two distinct message-ids can
// differ only by case in their encoded form).
type FilesystemBlobStore string

// NewFilesystemBlobStore ensures dir and its fan-out root exist and
// returns a store rooted there.
func NewFilesystemBlobStore(dir string) (FilesystemBlobStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	fs := FilesystemBlobStore(abs)
	if err := os.MkdirAll(abs, 0755); err != nil {
		log.WithFields(log.Fields{
			"pkg":  "store",
			"path": abs,
		}).Error("failed to create blob store root: ", err)
		return "", err
	}
	return fs, nil
}

func (fs FilesystemBlobStore) encode(id model.MessageID) string {
	sum := []byte(id.String())
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum)
}

// Path returns the deterministic two-level fan-out path for id. The
// first two characters of the base32 encoding select the fan-out
// directories.
func (fs FilesystemBlobStore) Path(id model.MessageID) string {
	enc := fs.encode(id)
	if len(enc) < 2 {
		enc = enc + "__"
	}
	return filepath.Join(string(fs), enc[0:1], enc[1:2], enc+".msg")
}

func (fs FilesystemBlobStore) Has(id model.MessageID) bool {
	_, err := os.Stat(fs.Path(id))
	return err == nil
}

func (fs FilesystemBlobStore) Open(id model.MessageID) (io.ReadCloser, error) {
	f, err := os.Open(fs.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSuchArticle
		}
		return nil, err
	}
	return f, nil
}

// Create opens id's blob path for writing, creating the two fan-out
// directory levels as needed.
func (fs FilesystemBlobStore) Create(id model.MessageID) (io.WriteCloser, error) {
	p := fs.Path(id)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return nil, fmt.Errorf("store: blob mkdir: %w", err)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("store: blob create: %w", err)
	}
	return f, nil
}
