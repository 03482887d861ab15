package config

import (
	"path/filepath"
	"strings"
)

// ResolvePath anchors a relative path at base, the directory of the loaded
// config file. An empty raw stays empty so callers can apply their own
// fallback.
func ResolvePath(base, raw string) string {
	target := strings.TrimSpace(raw)
	if target == "" {
		return ""
	}
	if filepath.IsAbs(target) || base == "" {
		return filepath.Clean(target)
	}
	return filepath.Clean(filepath.Join(base, target))
}
