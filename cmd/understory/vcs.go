package main

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/gitsight/go-vcsurl"
	"github.com/go-git/go-git/v5"
)

// repository describes the git checkout an analysis root lives in. It is
// used to attach permalinks to SARIF results.
type repository struct {
	Root      string
	Subfolder string
	Commit    string
	Branch    string
	// Link is the web URL of the origin remote, e.g.
	// https://github.com/owner/repo. Empty when origin is missing or not a
	// recognizable hosting URL.
	Link string
}

// openRepository collects commit and origin information for dir. It
// returns nil when dir is not inside a git work tree.
func openRepository(dir string) *repository {
	root := findRepoRoot(dir)
	repo, err := git.PlainOpen(root)
	if err != nil {
		return nil
	}
	r := &repository{Root: root}
	if rel, err := filepath.Rel(root, dir); err == nil && rel != "." {
		r.Subfolder = filepath.ToSlash(rel)
	}
	if head, err := repo.Head(); err == nil {
		if head.Name().IsBranch() {
			r.Branch = head.Name().Short()
		}
		r.Commit = head.Hash().String()
	}
	if remote, err := repo.Remote("origin"); err == nil {
		if cfg := remote.Config(); cfg != nil && len(cfg.URLs) > 0 {
			r.Link = webLink(cfg.URLs[0])
		}
	}
	return r
}

// webLink turns a clone URL (https or scp-style ssh) into the repository's
// web URL.
func webLink(remote string) string {
	info, err := vcsurl.Parse(remote)
	if err != nil || info.FullName == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/%s", info.Host, strings.TrimSuffix(info.FullName, ".git"))
}

// Permalink returns the web URL of line in file, a path relative to the
// analysis root. Empty when the commit or web link is unknown.
func (r *repository) Permalink(file string, line int) string {
	if r == nil || r.Link == "" || r.Commit == "" {
		return ""
	}
	p := path.Join(r.Subfolder, file)
	link := r.Link + "/blob/" + r.Commit + "/" + p
	if line > 0 {
		link += fmt.Sprintf("#L%d", line)
	}
	return link
}
