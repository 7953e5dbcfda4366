package archive

import (
	"bytes"
	"compress/gzip"
	"encoding/hex"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

// Key returns the bitcask key an image is stored under.
func Key(id uuid.UUID) []byte {
	hash := sha3.Sum224([]byte("image:" + id.String()))
	return []byte(hex.EncodeToString(hash[:]))
}

func compress(data []byte) ([]byte, error) {
	var b bytes.Buffer
	gz, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
