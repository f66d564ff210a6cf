package dedup

import (
	"encoding/json"
	"fmt"
	"time"
)

// PointerSuffix is appended to a duplicate's own remote key to form the
// key of its pointer object. The suffix is reserved: no uploaded file key
// ever ends in it, because pointer keys are derived by appending it.
const PointerSuffix = ".dptr"

const (
	pointerType    = "dedup_pointer"
	pointerVersion = 1
)

// PointerArtifact is the small remote JSON object that stands in for a
// duplicate file. It exists only for non-original files and is immutable
// once written.
type PointerArtifact struct {
	Type         string `json:"type"`
	Version      int    `json:"version"`
	OriginalHash string `json:"original_hash"`
	// OriginalPath is the remote key of the original object.
	OriginalPath   string `json:"original_path"`
	PointerCreated string `json:"pointer_created"`
}

// EncodePointer produces the pointer artifact bytes for a duplicate whose
// content lives under originalKey.
func EncodePointer(originalHash, originalKey string, now time.Time) ([]byte, error) {
	p := PointerArtifact{
		Type:           pointerType,
		Version:        pointerVersion,
		OriginalHash:   originalHash,
		OriginalPath:   originalKey,
		PointerCreated: now.UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding pointer: %w", err)
	}
	return data, nil
}

// DecodePointer parses pointer artifact bytes. The schema is forward
// compatible: unknown fields are ignored and any version from 1 up is
// accepted, since later versions keep the original_path field. Malformed
// payloads are an error, never a crash.
func DecodePointer(data []byte) (*PointerArtifact, error) {
	var p PointerArtifact
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("malformed pointer payload: %w", err)
	}
	if p.Type != pointerType {
		return nil, fmt.Errorf("not a pointer artifact: type %q", p.Type)
	}
	if p.Version < pointerVersion {
		return nil, fmt.Errorf("unsupported pointer version %d", p.Version)
	}
	if p.OriginalPath == "" {
		return nil, fmt.Errorf("pointer artifact has no original path")
	}
	return &p, nil
}
