// Package featureflags evaluates the FEATURE_FLAGS setting.
package featureflags

import (
	"hash/fnv"
	"maps"
	"strconv"
	"strings"
)

// Flag names understood by the application.
const (
	// AnonymousPosts allows posting without a signed-in identity. It is on
	// unless configured otherwise.
	AnonymousPosts = "anonymous_posts"
)

// Manager evaluates feature flags defined in a simple key=value list.
// Example: "anonymous_posts=off,new_feed=25%"
type Manager struct {
	flags map[string]string
}

// NewManager creates a feature-flag manager from a comma-separated config string.
func NewManager(raw string) *Manager {
	out := make(map[string]string)

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}

	return &Manager{flags: out}
}

// Enabled returns whether a flag is enabled for an identity (a username, or
// a client address for anonymous callers). Unset flags are off.
// Supported values:
// - on/true/1
// - off/false/0
// - N% (deterministic rollout by identity, e.g. 25%)
func (m *Manager) Enabled(name, identity string) bool {
	return m.EnabledOr(name, identity, false)
}

// EnabledOr is Enabled with an explicit result for unset or unparsable flags.
func (m *Manager) EnabledOr(name, identity string, fallback bool) bool {
	if m == nil {
		return fallback
	}

	value, ok := m.flags[normalize(name)]
	if !ok {
		return fallback
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	pctRaw, isPct := strings.CutSuffix(value, "%")
	if !isPct {
		return fallback
	}
	pct, err := strconv.Atoi(pctRaw)
	if err != nil {
		return fallback
	}
	switch {
	case pct <= 0:
		return false
	case pct >= 100:
		return true
	case identity == "":
		return false
	}
	return rolloutBucket(name, identity) < pct
}

// Raw returns a copy of configured flags.
func (m *Manager) Raw() map[string]string {
	return maps.Clone(m.flags)
}

// Snapshot returns evaluated flag status for one identity.
func (m *Manager) Snapshot(identity string) map[string]bool {
	out := make(map[string]bool, len(m.flags)+1)
	out[AnonymousPosts] = m.EnabledOr(AnonymousPosts, identity, true)
	for name := range m.flags {
		if name != AnonymousPosts {
			out[name] = m.Enabled(name, identity)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name, identity string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + identity))
	return int(h.Sum32() % 100)
}
