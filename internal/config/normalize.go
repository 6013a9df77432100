package config

import (
	"sort"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return err
	}
	if c.Cache.Path, err = expandPath(c.Cache.Path); err != nil {
		return err
	}

	c.Pipeline.ImageExtensions = normalizeExtensions(c.Pipeline.ImageExtensions)
	c.Pipeline.VideoExtensions = normalizeExtensions(c.Pipeline.VideoExtensions)
	c.Convert.Format = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c.Convert.Format, ".")))
	c.Describe.Provider = strings.TrimSpace(c.Describe.Provider)
	c.Describe.Model = strings.TrimSpace(c.Describe.Model)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

func normalizeExtensions(exts []string) []string {
	seen := make(map[string]struct{}, len(exts))
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		cleaned := strings.ToLower(strings.TrimSpace(ext))
		if cleaned == "" {
			continue
		}
		if !strings.HasPrefix(cleaned, ".") {
			cleaned = "." + cleaned
		}
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
	}
	sort.Strings(out)
	return out
}
