// Package fileid derives the on-disk names for a user's index namespace and
// per-file artifacts. The mapping is deterministic and reversible for filenames.
package fileid

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	userPrefix = "u-"
	// Extension is the suffix of a persisted index artifact.
	Extension = ".vidx"
	// MaxFilenameBytes bounds filenames so the encoded name fits common filesystem limits.
	MaxFilenameBytes = 180
)

// ErrInvalidKey is returned for user IDs or filenames that cannot be mapped to a path.
var ErrInvalidKey = errors.New("invalid index key")

// UserDir returns the directory name for userID. User IDs are hashed so that
// any string is safe and users never share a namespace.
func UserDir(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: empty user id", ErrInvalidKey)
	}
	hash := sha256.Sum256([]byte(userID))
	return userPrefix + hex.EncodeToString(hash[:]), nil
}

// FileName returns the artifact name for filename.
func FileName(filename string) (string, error) {
	switch {
	case filename == "":
		return "", fmt.Errorf("%w: empty filename", ErrInvalidKey)
	case len(filename) > MaxFilenameBytes:
		return "", fmt.Errorf("%w: filename longer than %d bytes", ErrInvalidKey, MaxFilenameBytes)
	case strings.ContainsRune(filename, 0):
		return "", fmt.Errorf("%w: filename contains NUL", ErrInvalidKey)
	}
	return base64.RawURLEncoding.EncodeToString([]byte(filename)) + Extension, nil
}

// ParseFileName reverses FileName. ok is false for names that are not artifacts,
// including temporary files.
func ParseFileName(name string) (filename string, ok bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, Extension) {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, Extension))
	if err != nil || len(raw) == 0 {
		return "", false
	}
	return string(raw), true
}
