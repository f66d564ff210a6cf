package dedup

import (
	"fmt"
	"strings"
)

// Remote keys are derived from (drive, relative path), never from content.
// Resumption after a crash relies on "object exists at key K" meaning the
// bytes for K were durably stored, which holds exactly because two
// processes computing the same key are by construction uploading the same
// file. Do not make keys content-addressed without revisiting that.

const hexUpper = "0123456789ABCDEF"

// SanitizeRelPath percent-encodes every byte the remote store rejects in
// object names: the control range 0x00-0x1F and 0x7F. The escape byte '%'
// is encoded as well; otherwise a literal "%0A" in a path could not be
// told apart from an encoded newline and the transform would not be
// reversible.
func SanitizeRelPath(relPath string) string {
	var b strings.Builder
	for i := 0; i < len(relPath); i++ {
		c := relPath[i]
		if c < 0x20 || c == 0x7F || c == '%' {
			b.WriteByte('%')
			b.WriteByte(hexUpper[c>>4])
			b.WriteByte(hexUpper[c&0x0F])
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// DesanitizeRelPath reverses SanitizeRelPath, recovering the exact
// original relative path. A '%' not followed by two hex digits is a
// malformed key.
func DesanitizeRelPath(key string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(key) {
			return "", fmt.Errorf("truncated percent escape at offset %d", i)
		}
		hi, ok1 := unhex(key[i+1])
		lo, ok2 := unhex(key[i+2])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("invalid percent escape %q at offset %d", key[i:i+3], i)
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// RemoteKey builds the object key for a file: <drive>/<sanitized rel path>.
func RemoteKey(drive, relPath string) string {
	return drive + "/" + SanitizeRelPath(relPath)
}

// SplitRemoteKey splits an object key back into its drive name and the
// desanitized relative path.
func SplitRemoteKey(key string) (drive, relPath string, err error) {
	i := strings.IndexByte(key, '/')
	if i < 0 {
		return "", "", fmt.Errorf("remote key %q has no drive component", key)
	}
	rel, err := DesanitizeRelPath(key[i+1:])
	if err != nil {
		return "", "", fmt.Errorf("remote key %q: %w", key, err)
	}
	return key[:i], rel, nil
}
