package scenario

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Cache wraps a Loader with an in-memory definition cache that is
// invalidated by filesystem events. Useful for long-lived callers (the
// scenarios CLI command, tests); one-shot hook invocations can use the
// Loader directly.
type Cache struct {
	loader  *Loader
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	entries map[string]*Scenario

	wg   sync.WaitGroup
	done chan struct{}
}

// NewCache creates a cache over the loader's scenario directory.
func NewCache(loader *Loader) *Cache {
	return &Cache{
		loader:  loader,
		entries: make(map[string]*Scenario),
		done:    make(chan struct{}),
	}
}

// Load returns the cached definition for name, loading it on first use.
func (c *Cache) Load(name string) (*Scenario, error) {
	c.mu.RLock()
	sc, ok := c.entries[name]
	c.mu.RUnlock()
	if ok {
		return sc, nil
	}

	sc, err := c.loader.Load(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[name] = sc
	c.mu.Unlock()
	return sc, nil
}

// List delegates to the underlying loader (directory listings are cheap
// and caching them would hide newly added definitions).
func (c *Cache) List() ([]string, error) {
	return c.loader.List()
}

// Watch starts invalidating cached definitions when their files change.
func (c *Cache) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(c.loader.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch scenario directory: %w", err)
	}
	c.watcher = watcher

	c.wg.Add(1)
	go c.eventLoop()
	return nil
}

// Close stops the watcher, if one was started.
func (c *Cache) Close() error {
	if c.watcher == nil {
		return nil
	}
	close(c.done)
	err := c.watcher.Close()
	c.wg.Wait()
	return err
}

func (c *Cache) eventLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".yaml") {
				continue
			}
			name := strings.TrimSuffix(filepath.Base(event.Name), ".yaml")
			c.mu.Lock()
			delete(c.entries, name)
			c.mu.Unlock()
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("scenario watcher error: %v", err)
		}
	}
}
