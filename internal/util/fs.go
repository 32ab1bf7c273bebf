package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	maxNameRunes = 200
	unsafeChars  = `[]/\:*?"<>|#%{}$!@+^~` + "`" + `=&; `
)

// RemoveIfExists deletes the file at path; a missing file is not an error.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// SanitizeFilename makes a worker-suggested name safe to create locally.
// Unsafe characters become underscores, runs of underscores collapse and
// the result is capped at 200 runes.
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if strings.ContainsRune(unsafeChars, r) || r < 0x20 {
			r = '_'
		}
		if r == '_' && lastUnderscore {
			continue
		}
		lastUnderscore = r == '_'
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), "_-")
	if utf8.RuneCountInString(out) > maxNameRunes {
		out = string([]rune(out)[:maxNameRunes])
	}
	if strings.Trim(out, ".") == "" {
		return "untitled"
	}
	return out
}

// UniquePath returns dir/name, or dir/base-N.ext for the first N that does
// not exist yet.
func UniquePath(dir, name string) string {
	p := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; exists(p); i++ {
		p = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, i, ext))
	}
	return p
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return !errors.Is(err, os.ErrNotExist)
}
