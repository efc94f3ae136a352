package envproxy

import (
	"runtime"
	"sync"
	"weak"

	"github.com/dop251/goja"
)

type objectRef = weak.Pointer[goja.Object]

// wrapperCache maps an original object to its wrapper without keeping
// either alive. Entries are dropped by cleanups once the original is
// collected. The mutex exists because cleanups run on their own goroutine;
// interception itself is single-threaded per runtime.
type wrapperCache struct {
	mu      sync.Mutex
	entries map[objectRef]objectRef
}

func newWrapperCache() *wrapperCache {
	return &wrapperCache{entries: make(map[objectRef]objectRef)}
}

// lookup returns the live wrapper for original, or nil.
func (c *wrapperCache) lookup(original *goja.Object) *goja.Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ref, ok := c.entries[weak.Make(original)]; ok {
		return ref.Value()
	}
	return nil
}

func (c *wrapperCache) store(original, wrapper *goja.Object) {
	key := weak.Make(original)

	c.mu.Lock()
	_, existed := c.entries[key]
	c.entries[key] = weak.Make(wrapper)
	c.mu.Unlock()

	if !existed {
		runtime.AddCleanup(original, c.forget, key)
	}
}

func (c *wrapperCache) forget(key objectRef) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *wrapperCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// registry remembers which objects are wrappers. It is shared by every
// factory of an Environment so a wrapper from one installation is never
// wrapped again by another.
type registry struct {
	mu       sync.Mutex
	wrappers map[objectRef]struct{}
}

func newRegistry() *registry {
	return &registry{wrappers: make(map[objectRef]struct{})}
}

func (r *registry) add(wrapper *goja.Object) {
	key := weak.Make(wrapper)
	r.mu.Lock()
	r.wrappers[key] = struct{}{}
	r.mu.Unlock()
	runtime.AddCleanup(wrapper, r.remove, key)
}

func (r *registry) remove(key objectRef) {
	r.mu.Lock()
	delete(r.wrappers, key)
	r.mu.Unlock()
}

func (r *registry) contains(obj *goja.Object) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.wrappers[weak.Make(obj)]
	return ok
}

// unwrap returns the original behind a registered wrapper, or obj itself.
func (r *registry) unwrap(obj *goja.Object) *goja.Object {
	if obj == nil || !r.contains(obj) {
		return obj
	}
	if p, ok := obj.Export().(goja.Proxy); ok {
		return p.Target()
	}
	return obj
}
