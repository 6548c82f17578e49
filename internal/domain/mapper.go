package domain

import "strings"

// MapPath translates a device-local source path into a downstream playback
// path by applying the first rule whose source is a prefix of the path.
// The remaining suffix is preserved verbatim. When no rule matches the path
// is returned unchanged; callers detect "unmapped" by comparing with the input.
func MapPath(sourcePath string, rules []MappingRule) string {
	for _, rule := range rules {
		if rule.Source == "" {
			continue
		}
		if strings.HasPrefix(sourcePath, rule.Source) {
			return rule.Target + strings.TrimPrefix(sourcePath, rule.Source)
		}
	}
	return sourcePath
}
