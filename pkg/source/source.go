// Package source builds the ordered source list a generator walks through.
package source

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/logflow/trackgen/internal/model"
	tgerrors "github.com/logflow/trackgen/pkg/errors"
)

// S3Scheme prefixes sources stored in S3.
const S3Scheme = "s3://"

// IsRemote reports whether src must be staged before it can be opened.
func IsRemote(src model.Source) bool {
	return strings.HasPrefix(string(src), S3Scheme)
}

// ParseS3 splits an s3://bucket/key source.
func ParseS3(src model.Source) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(string(src), S3Scheme)
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// Expand turns configured entries into an ordered source list. Entries with
// glob metacharacters are expanded and sorted for deterministic ordering;
// other entries, including s3:// URLs, are kept as given. Order across entries
// is preserved.
func Expand(entries []string) ([]model.Source, error) {
	var sources []model.Source

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.HasPrefix(entry, S3Scheme) {
			if _, _, ok := ParseS3(model.Source(entry)); !ok {
				return nil, tgerrors.Configuration("invalid s3 source %q", entry)
			}
			sources = append(sources, model.Source(entry))
			continue
		}

		if !hasMeta(entry) {
			sources = append(sources, model.Source(entry))
			continue
		}

		matches, err := filepath.Glob(entry)
		if err != nil {
			return nil, tgerrors.Configuration("invalid glob pattern %q: %v", entry, err)
		}
		if len(matches) == 0 {
			return nil, tgerrors.Configuration("no files match pattern: %s", entry)
		}
		sort.Strings(matches)
		for _, m := range matches {
			sources = append(sources, model.Source(m))
		}
	}

	if len(sources) == 0 {
		return nil, tgerrors.Configuration("at least one source is required")
	}
	return sources, nil
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, `*?[\`)
}

// Strings converts sources to plain strings.
func Strings(sources []model.Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = string(s)
	}
	return out
}
