package localcache

import (
	"encoding/base64"
	"errors"
	"io/fs"
	"sync"

	"github.com/peterbourgon/diskv/v3"
)

// ErrNoKey is returned by a [KV] for keys that were never set.
var ErrNoKey = errors.New("key not found")

// KV is the durable key/value storage the cache persists into.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, val []byte) error
	Delete(key string) error
}

// DiskKV keeps each key as a file under a base directory.
type DiskKV struct {
	d *diskv.Diskv
}

// NewDiskKV creates a [DiskKV] rooted at basePath.
func NewDiskKV(basePath string) DiskKV {
	return DiskKV{d: diskv.New(diskv.Options{
		BasePath:          basePath,
		AdvancedTransform: keyToPath,
		InverseTransform:  pathToKey,
		CacheSizeMax:      1024 * 1024, // 1MB
	})}
}

// Calendar keys are arbitrary strings, so file names are encoded.
func keyToPath(key string) *diskv.PathKey {
	return &diskv.PathKey{
		Path:     []string{"kv"},
		FileName: base64.RawURLEncoding.EncodeToString([]byte(key)),
	}
}

func pathToKey(pk *diskv.PathKey) string {
	byts, err := base64.RawURLEncoding.DecodeString(pk.FileName)
	if err != nil {
		return pk.FileName
	}
	return string(byts)
}

func (d DiskKV) Get(key string) ([]byte, error) {
	byts, err := d.d.Read(key)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoKey
	}

	return byts, err
}

func (d DiskKV) Set(key string, val []byte) error {
	return d.d.Write(key, val)
}

func (d DiskKV) Delete(key string) error {
	if err := d.d.Erase(key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}

// MemoryKV is a [KV] that lives only as long as the process.
type MemoryKV struct {
	mu   sync.Mutex
	vals map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{vals: map[string][]byte{}}
}

func (m *MemoryKV) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	val, ok := m.vals[key]
	if !ok {
		return nil, ErrNoKey
	}
	return append([]byte(nil), val...), nil
}

func (m *MemoryKV) Set(key string, val []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.vals[key] = append([]byte(nil), val...)
	return nil
}

func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.vals, key)
	return nil
}
