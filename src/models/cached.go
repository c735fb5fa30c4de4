package models

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Protocol-Lattice/go-tutor/src/cache"
)

// CachedAgent wraps an Agent and caches Generate calls, optionally persisting
// the cache to disk so repeated sessions reuse earlier generations.
type CachedAgent struct {
	Agent    Agent
	Cache    *cache.LRU
	FilePath string
}

// NewCachedAgent creates a caching wrapper. filePath may be empty for a
// memory-only cache.
func NewCachedAgent(inner Agent, size int, ttl time.Duration, filePath string) *CachedAgent {
	c := &CachedAgent{
		Agent:    inner,
		Cache:    cache.NewLRU(size, ttl),
		FilePath: filePath,
	}
	if filePath != "" {
		c.load()
	}
	return c
}

func (c *CachedAgent) load() {
	f, err := os.Open(c.FilePath)
	if err != nil {
		return // ignore errors (file not found, etc)
	}
	defer f.Close()

	var dump map[string]cache.Entry
	if err := json.NewDecoder(f).Decode(&dump); err == nil {
		c.Cache.Restore(dump)
	}
}

func (c *CachedAgent) save() {
	if c.FilePath == "" {
		return
	}
	dump := c.Cache.Dump()

	// Atomic write: write to temp, then rename.
	tmp := c.FilePath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return
	}
	if err := json.NewEncoder(f).Encode(dump); err != nil {
		f.Close()
		os.Remove(tmp)
		return
	}
	f.Close()
	os.Rename(tmp, c.FilePath)
}

func cacheKey(req Request) string {
	return cache.HashKey(fmt.Sprintf("%s\x00%s\x00%.3f\x00%d", req.System, req.Prompt, req.Temperature, req.MaxTokens))
}

// Generate checks the cache before calling the underlying agent.
func (c *CachedAgent) Generate(ctx context.Context, req Request) (string, error) {
	key := cacheKey(req)
	if v, ok := c.Cache.Get(key); ok {
		if text, ok := v.(string); ok {
			return text, nil
		}
	}
	text, err := c.Agent.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	c.Cache.Set(key, text)
	c.save()
	return text, nil
}
