package assistant

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Buffer sizes for streaming file hashing, selected by file size.
// The buffer size is a throughput knob only: the resulting digest is
// identical regardless of how the file is chunked.
const (
	smallFileThreshold = 1 << 20  // 1 MiB
	largeFileThreshold = 1 << 30  // 1 GiB
	smallHashBuffer    = 64 << 10 // 64 KiB
	mediumHashBuffer   = 256 << 10
	largeHashBuffer    = 1 << 20
)

// hashBufferSize returns the read buffer size to use for a file of the
// given size.
func hashBufferSize(fileSize int64) int {
	switch {
	case fileSize < smallFileThreshold:
		return smallHashBuffer
	case fileSize < largeFileThreshold:
		return mediumHashBuffer
	default:
		return largeHashBuffer
	}
}

// hashFile computes the SHA-256 content hash of the file at path,
// streaming it through a size-appropriate buffer, and returns the
// lowercase hex digest. Returns ErrNotFound if the file does not exist.
func hashFile(path string) (string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %v", ErrStorage, path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrStorage, path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashBufferSize(info.Size()))
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrStorage, path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
