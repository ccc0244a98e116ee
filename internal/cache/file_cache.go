// Package cache keeps small JSON documents on disk between runs, such as
// the handles of remote jobs still being computed.
package cache

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hularuns/policy-analysis/internal/raster"
)

type CacheService[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T) error
	Delete(key string) error
	GenerateKey(params ...interface{}) string
}

// record is the on-disk layout. Data is kept raw so the checksum covers the
// exact bytes that were written.
type record struct {
	Data     json.RawMessage `json:"data"`
	SavedAt  time.Time       `json:"saved_at"`
	Checksum string          `json:"checksum"`
}

// FileCache stores one JSON document per key under dir. Entries whose
// checksum no longer matches their payload are treated as missing.
type FileCache[T any] struct {
	dir    string
	maxAge time.Duration
}

func NewFileCache[T any](dir string) *FileCache[T] {
	return &FileCache[T]{dir: dir}
}

// WithMaxAge makes entries older than age invisible to Get.
func (fc *FileCache[T]) WithMaxAge(age time.Duration) *FileCache[T] {
	fc.maxAge = age
	return fc
}

// GenerateKey hashes the printed form of params into a file-safe key.
func (fc *FileCache[T]) GenerateKey(params ...interface{}) string {
	var sb strings.Builder
	for _, p := range params {
		fmt.Fprintf(&sb, "%v|", p)
	}
	sum := sha1.Sum([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func (fc *FileCache[T]) Get(key string) (T, bool) {
	var out T
	raw, err := os.ReadFile(fc.file(key))
	if err != nil {
		return out, false
	}

	var rec record
	switch {
	case json.Unmarshal(raw, &rec) != nil:
		return out, false
	case rec.Checksum != checksum(rec.Data):
		return out, false
	case fc.maxAge > 0 && time.Since(rec.SavedAt) > fc.maxAge:
		return out, false
	}
	if err := json.Unmarshal(rec.Data, &out); err != nil {
		return out, false
	}
	return out, true
}

func (fc *FileCache[T]) Set(key string, data T) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	encoded, err := json.Marshal(record{Data: payload, SavedAt: time.Now(), Checksum: checksum(payload)})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	return raster.WriteAtomic(fc.file(key), func(tmpPath string) error {
		return os.WriteFile(tmpPath, encoded, 0644)
	})
}

func (fc *FileCache[T]) Delete(key string) error {
	if err := os.Remove(fc.file(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

func (fc *FileCache[T]) file(key string) string {
	return filepath.Join(fc.dir, key+".json")
}

func checksum(payload []byte) string {
	var compact bytes.Buffer
	if json.Compact(&compact, payload) == nil {
		payload = compact.Bytes()
	}
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}
