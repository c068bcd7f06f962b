package interceptors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
)

// Section returns the config of one interceptor and whether it is enabled.
// A section without an enabled key is treated as disabled.
func Section(interceptorsCfg map[string]map[string]any, name string) (map[string]any, bool) {
	conf, ok := interceptorsCfg[name]
	if !ok {
		return nil, false
	}
	enabled, _ := conf["enabled"].(bool)
	return conf, enabled
}

// Build constructs the enabled interceptors in name order. Sections naming
// an interceptor that was never registered are an error.
func Build(interceptorsCfg map[string]map[string]any, deps Deps) ([]Middleware, error) {
	deps.Log = logutil.NoopIfNil(deps.Log)

	names := make([]string, 0, len(interceptorsCfg))
	for name := range interceptorsCfg {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Middleware
	for _, name := range names {
		conf, enabled := Section(interceptorsCfg, name)
		if !enabled {
			deps.Log.Debug("interceptor disabled", "interceptor", name)
			continue
		}
		newFn, ok := Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown interceptor %q (registered: %s)", name, strings.Join(Names(), ", "))
		}
		mw, err := newFn(conf, deps)
		if err != nil {
			return nil, fmt.Errorf("interceptor %s: %w", name, err)
		}
		deps.Log.Info("interceptor enabled", "interceptor", name)
		out = append(out, mw)
	}
	return out, nil
}
