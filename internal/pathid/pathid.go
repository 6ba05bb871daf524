// Package pathid assigns stable integer identities to resolved file paths.
package pathid

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
)

// ErrUnknownID is returned when an id has never been minted.
var ErrUnknownID = errors.New("pathid: unknown file path id")

// FilePathID identifies one resolved file path. Zero is the invalid id.
type FilePathID int64

// Invalid is the zero FilePathID.
const Invalid FilePathID = 0

// IsValid reports whether id was minted by a Caching implementation.
func (id FilePathID) IsValid() bool { return id > 0 }

// Caching maps resolved paths to ids and back. Implementations must be safe
// for concurrent use; equal paths always map to equal ids.
type Caching interface {
	FilePathID(path string) (FilePathID, error)
	FilePath(id FilePathID) (string, error)
}

// Source is a persistent backing for a Cache. FetchFilePathID inserts the
// path when it is not stored yet.
type Source interface {
	FetchFilePathID(path string) (int64, error)
	FetchFilePath(id int64) (string, error)
}

// Cache is the in-process FilePath identity service. Without a Source it
// mints ids sequentially starting at 1.
type Cache struct {
	mu     sync.RWMutex
	byPath map[string]FilePathID
	byID   map[FilePathID]string
	next   FilePathID
	source Source
}

var _ Caching = (*Cache)(nil)

// NewCache creates a Cache. src may be nil for a purely in-memory cache.
func NewCache(src Source) *Cache {
	return &Cache{
		byPath: make(map[string]FilePathID),
		byID:   make(map[FilePathID]string),
		next:   1,
		source: src,
	}
}

// Normalize cleans path and converts it to forward slashes. Every path is
// normalized before it is looked up.
func Normalize(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}

// FilePathID returns the id for path, minting one on first use.
func (c *Cache) FilePathID(path string) (FilePathID, error) {
	if path == "" {
		return Invalid, fmt.Errorf("pathid: empty path")
	}
	path = Normalize(path)

	c.mu.RLock()
	id, ok := c.byPath[path]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.byPath[path]; ok {
		return id, nil
	}
	if c.source != nil {
		raw, err := c.source.FetchFilePathID(path)
		if err != nil {
			return Invalid, fmt.Errorf("pathid: fetch id for %s: %w", path, err)
		}
		id = FilePathID(raw)
	} else {
		id = c.next
		c.next++
	}
	c.byPath[path] = id
	c.byID[id] = path
	return id, nil
}

// FilePath returns the path minted for id.
func (c *Cache) FilePath(id FilePathID) (string, error) {
	if !id.IsValid() {
		return "", ErrUnknownID
	}
	c.mu.RLock()
	path, ok := c.byID[id]
	c.mu.RUnlock()
	if ok {
		return path, nil
	}
	if c.source == nil {
		return "", ErrUnknownID
	}

	path, err := c.source.FetchFilePath(int64(id))
	if err != nil {
		return "", fmt.Errorf("pathid: fetch path for %d: %w", id, err)
	}
	c.mu.Lock()
	c.byPath[path] = id
	c.byID[id] = path
	c.mu.Unlock()
	return path, nil
}

// Len returns the number of cached paths.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byPath)
}
