package interceptors

import (
	"sort"
	"sync"
)

var (
	mu           sync.RWMutex
	constructors = map[string]NewInterceptor{}
)

// Register makes an interceptor available under name to Build. It is meant
// to be called from init and panics on an empty name, a nil constructor or
// a name registered twice.
func Register(name string, fn NewInterceptor) {
	if name == "" || fn == nil {
		panic("interceptors: Register needs a name and a constructor")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, dup := constructors[name]; dup {
		panic("interceptors: Register called twice for " + name)
	}
	constructors[name] = fn
}

// Get looks up a registered constructor.
func Get(name string) (NewInterceptor, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := constructors[name]
	return fn, ok
}

// Names lists the registered interceptors in sorted order.
func Names() []string {
	mu.RLock()
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	mu.RUnlock()
	sort.Strings(names)
	return names
}
