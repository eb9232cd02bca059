package ai

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
)

// KeyPool holds a set of API credentials and hands one out per request.
// Spreading requests over several keys keeps a single key under the
// endpoint's rate limit when multiple workers extract in parallel.
type KeyPool struct {
	keys []string
}

// NewKeyPool creates a pool from the given keys. Empty entries are dropped.
func NewKeyPool(keys []string) (*KeyPool, error) {
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		cleaned = append(cleaned, k)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("key pool requires at least one API key")
	}
	return &KeyPool{keys: cleaned}, nil
}

// NewKeyPoolFromFile reads newline-delimited API keys from path.
// Blank lines and lines starting with # are skipped.
func NewKeyPoolFromFile(path string) (*KeyPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	keys := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	return NewKeyPool(keys)
}

// Get returns a random key from the pool.
func (p *KeyPool) Get() string {
	return p.keys[rand.Intn(len(p.keys))]
}

// Size returns the number of keys in the pool.
func (p *KeyPool) Size() int {
	return len(p.keys)
}
