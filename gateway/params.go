package gateway

import (
	"time"

	"github.com/fieldgw/igw/core"
)

// params is a thin typed accessor over a channel's untyped TOML
// parameters table.
type params map[string]interface{}

func (p params) string(key, def string) (string, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", core.ConfigErr("parameter %q must be a string", key)
	}
	return s, nil
}

func (p params) requireString(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", core.ConfigErr("parameter %q is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", core.ConfigErr("parameter %q must be a string", key)
	}
	return s, nil
}

func (p params) int64(key string, def int64) (int64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, core.ConfigErr("parameter %q must be a number", key)
	}
}

func (p params) bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, core.ConfigErr("parameter %q must be a boolean", key)
	}
	return b, nil
}

func (p params) durationMs(key string, def time.Duration) (time.Duration, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	ms, err := p.int64(key, 0)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}
