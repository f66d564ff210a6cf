package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"
)

const (
	// hashChunkSize is the read buffer size. The digest is independent of
	// chunking; this only bounds memory while streaming.
	hashChunkSize = 4 * 1024 * 1024

	hashAttempts = 3
	hashBackoff  = 200 * time.Millisecond
)

// ContentHasher streams files and produces their SHA-256 digest and byte
// count. Transient read failures (device-level I/O errors on flaky media)
// are retried with linearly increasing backoff before being propagated.
type ContentHasher struct {
	fsys  Filesystem
	sleep func(time.Duration)
}

func NewContentHasher(fsys Filesystem) *ContentHasher {
	return &ContentHasher{fsys: fsys, sleep: time.Sleep}
}

// HashFile returns the hex SHA-256 digest of the file at path and the
// number of bytes read. Identical bytes always yield the identical digest.
func (h *ContentHasher) HashFile(path string) (digest string, size int64, err error) {
	for attempt := 1; ; attempt++ {
		digest, size, err = h.hashOnce(path)
		if err == nil {
			return digest, size, nil
		}
		// A missing or forbidden file will not heal; retry the rest.
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return "", 0, err
		}
		if attempt == hashAttempts {
			return "", 0, fmt.Errorf("hashing %s after %d attempts: %w", path, attempt, err)
		}
		h.sleep(time.Duration(attempt) * hashBackoff)
	}
}

func (h *ContentHasher) hashOnce(path string) (string, int64, error) {
	f, err := h.fsys.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	sum := sha256.New()
	buf := make([]byte, hashChunkSize)
	size, err := io.CopyBuffer(sum, f, buf)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(sum.Sum(nil)), size, nil
}
