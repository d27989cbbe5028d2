package orchestrator

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// globMeta are the characters that make a path argument a pattern.
const globMeta = "*?[{"

// ExpandPaths turns path arguments into data files. Regular files are kept
// when their extension is allowed, directories are walked recursively and
// patterns are matched against the files under their static prefix. The
// second return value lists arguments that matched nothing on disk.
// Duplicates are dropped, keeping the first occurrence.
func ExpandPaths(paths, allowedExts []string) (files []string, missing []string) {
	seen := make(map[string]bool)
	add := func(p string) {
		if !allowedExtension(p, allowedExts) || seen[p] {
			return
		}
		seen[p] = true
		files = append(files, p)
	}

	for _, arg := range paths {
		if strings.ContainsAny(arg, globMeta) {
			matched := expandPattern(arg, add)
			if !matched {
				missing = append(missing, arg)
			}
			continue
		}

		info, err := os.Stat(arg)
		if err != nil {
			missing = append(missing, arg)
			continue
		}
		if info.IsDir() {
			walkFiles(arg, func(p string) { add(p) })
			continue
		}
		if info.Mode().IsRegular() {
			add(arg)
		}
	}
	return files, missing
}

// expandPattern reports whether pattern matched at least one regular file.
func expandPattern(pattern string, add func(string)) bool {
	g, err := glob.Compile(filepath.ToSlash(pattern), '/')
	if err != nil {
		return false
	}

	matched := false
	walkFiles(staticPrefix(pattern), func(p string) {
		if g.Match(filepath.ToSlash(p)) {
			matched = true
			add(p)
		}
	})
	return matched
}

// staticPrefix returns the directory part of pattern that precedes its first
// metacharacter.
func staticPrefix(pattern string) string {
	i := strings.IndexAny(pattern, globMeta)
	if i < 0 {
		return filepath.Dir(pattern)
	}
	head := pattern[:i]
	j := strings.LastIndexAny(head, `/`+string(filepath.Separator))
	if j < 0 {
		return "."
	}
	if j == 0 {
		return head[:1]
	}
	return head[:j]
}

// walkFiles calls fn for every regular file under root in lexical order.
// Unreadable entries are skipped.
func walkFiles(root string, fn func(string)) {
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			fn(p)
		}
		return nil
	})
}

func allowedExtension(path string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	return slices.Contains(allowed, strings.ToLower(filepath.Ext(path)))
}
