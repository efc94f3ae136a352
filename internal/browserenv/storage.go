package browserenv

import (
	"sort"
	"sync"

	"github.com/dop251/goja"
)

// Storage backs a localStorage or sessionStorage stand-in.
type Storage struct {
	mu    sync.RWMutex
	items map[string]string
	order []string
}

// NewStorage creates a storage seeded with items.
func NewStorage(seed map[string]string) *Storage {
	s := &Storage{items: make(map[string]string, len(seed))}
	keys := make([]string, 0, len(seed))
	for k := range seed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.SetItem(k, seed[k])
	}
	return s
}

func (s *Storage) GetItem(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

func (s *Storage) SetItem(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		s.order = append(s.order, key)
	}
	s.items[key] = value
}

func (s *Storage) RemoveItem(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return
	}
	delete(s.items, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]string)
	s.order = nil
}

// Key returns the name of the n-th key in insertion order.
func (s *Storage) Key(n int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n < 0 || n >= len(s.order) {
		return "", false
	}
	return s.order[n], true
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Snapshot copies the current contents.
func (s *Storage) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.items))
	for k, v := range s.items {
		out[k] = v
	}
	return out
}

// bind exposes s as a Storage object. Methods live on the object's own
// prototype, matching where browsers put them.
func (s *Storage) bind(vm *goja.Runtime) (*goja.Object, error) {
	obj := vm.NewObject()
	if err := ToObjectTag(vm, obj, "Storage"); err != nil {
		return nil, err
	}
	proto := obj.Prototype()

	methods := map[string]interface{}{
		"getItem": func(key string) goja.Value {
			if v, ok := s.GetItem(key); ok {
				return vm.ToValue(v)
			}
			return goja.Null()
		},
		"setItem": func(key string, value goja.Value) {
			s.SetItem(key, value.String())
		},
		"removeItem": func(key string) { s.RemoveItem(key) },
		"clear":      func() { s.Clear() },
		"key": func(n int) goja.Value {
			if k, ok := s.Key(n); ok {
				return vm.ToValue(k)
			}
			return goja.Null()
		},
	}
	for name, fn := range methods {
		if err := DefinedValue(vm, proto, name, fn, Attrs{Enumerable: boolPtr(true)}); err != nil {
			return nil, err
		}
	}

	length := vm.ToValue(func() int { return s.Len() })
	if err := proto.DefineAccessorProperty("length", length, nil, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		return nil, err
	}
	return obj, nil
}

func boolPtr(b bool) *bool { return &b }
