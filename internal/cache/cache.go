// Package cache keeps the last fetched lead batch on disk so repeated runs
// inside the freshness window skip the provider entirely.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	dataFile = "leads.json"
	metaFile = "leads.meta.json"
	lockFile = ".leads.lock"
)

type metadata struct {
	Signature string    `json:"signature"`
	FetchedAt time.Time `json:"fetched_at"`
	Count     int       `json:"count"`
	TTLHours  float64   `json:"ttl_hours"`
}

type Cache struct {
	dir string
	ttl time.Duration
}

func New(dir string, ttl time.Duration) *Cache {
	return &Cache{dir: dir, ttl: ttl}
}

// Signature fingerprints the query parameters so a cached batch is only
// reused for the exact same search.
func Signature(query any) (string, error) {
	b, err := json.Marshal(query)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Read loads the cached batch into out when the stored signature matches
// and the batch is still fresh. Corrupt or missing files count as a miss,
// never an error; the caller just fetches again.
func (c *Cache) Read(signature string, out any) bool {
	meta, ok := c.readMeta()
	if !ok {
		return false
	}
	if meta.Signature != signature {
		log.Printf("[cache] signature changed, ignoring cached batch")
		return false
	}
	if c.ttl <= 0 || time.Since(meta.FetchedAt) >= c.ttl {
		log.Printf("[cache] batch from %s is stale", meta.FetchedAt.Format(time.RFC3339))
		return false
	}
	b, err := os.ReadFile(filepath.Join(c.dir, dataFile))
	if err != nil {
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		log.Printf("[cache] unreadable batch file: %v", err)
		return false
	}
	return true
}

// Write stores the batch and then its metadata; the metadata is the commit
// point. A flock guard keeps the pair consistent if two runs race a write,
// but concurrent runs remain unsupported (see Status docs).
func (c *Cache) Write(signature string, batch any, count int) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	fl := flock.New(filepath.Join(c.dir, lockFile))
	if err := fl.Lock(); err != nil {
		return err
	}
	defer fl.Unlock()

	if err := writeJSONAtomic(filepath.Join(c.dir, dataFile), batch); err != nil {
		return err
	}
	meta := metadata{
		Signature: signature,
		FetchedAt: time.Now().UTC(),
		Count:     count,
		TTLHours:  c.ttl.Hours(),
	}
	return writeJSONAtomic(filepath.Join(c.dir, metaFile), meta)
}

type Info struct {
	Exists    bool
	Fresh     bool
	FetchedAt time.Time
	Age       time.Duration
	Count     int
}

func (c *Cache) Status() Info {
	meta, ok := c.readMeta()
	if !ok {
		return Info{}
	}
	age := time.Since(meta.FetchedAt)
	return Info{
		Exists:    true,
		Fresh:     c.ttl > 0 && age < c.ttl,
		FetchedAt: meta.FetchedAt,
		Age:       age,
		Count:     meta.Count,
	}
}

func (c *Cache) Clear() error {
	for _, name := range []string{dataFile, metaFile} {
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (c *Cache) readMeta() (metadata, bool) {
	var meta metadata
	b, err := os.ReadFile(filepath.Join(c.dir, metaFile))
	if err != nil {
		return meta, false
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		log.Printf("[cache] unreadable metadata: %v", err)
		return meta, false
	}
	return meta, true
}

func writeJSONAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
