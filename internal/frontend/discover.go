package frontend

import (
	"bytes"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// skipDirs are never descended into by the filesystem walk.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// SkipDir reports whether discovery skips directories named name.
func SkipDir(name string) bool {
	return skipDirs[name]
}

// Discover lists the supported source files under root, relative to root in
// slash form and sorted. Inside a git work tree it uses git ls-files so
// .gitignore is respected; otherwise it walks the filesystem, skipping
// hidden directories, node_modules, vendor and __pycache__.
func Discover(root string) ([]string, error) {
	paths, err := gitListFiles(root)
	if err != nil {
		paths, err = walkListFiles(root)
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// gitListFiles returns tracked and untracked-but-not-ignored files.
func gitListFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	seen := make(map[string]bool)
	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		if _, ok := LanguageForFile(line); ok {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

func walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || SkipDir(name)) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := LanguageForFile(path); !ok {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}
