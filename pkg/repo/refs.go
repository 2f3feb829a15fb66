package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gritvcs/grit/pkg/object"
)

// ListRefs lists references under .grit/ whose name starts with prefix
// (e.g. "refs/" or "refs/heads/"). Names are full ref paths like
// "refs/heads/main". An empty prefix lists everything under refs/.
func (r *Repo) ListRefs(prefix string) (map[string]object.Hash, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "refs/"
	}
	dir := filepath.Join(r.GritDir, filepath.FromSlash(strings.TrimSuffix(prefix, "/")))

	refs := make(map[string]object.Hash)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		// In-flight lockfiles are not refs.
		if strings.HasSuffix(d.Name(), ".lock") {
			return nil
		}

		rel, err := filepath.Rel(r.GritDir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		h := object.Hash(strings.TrimSpace(string(data)))
		if h == "" {
			return nil
		}
		refs[filepath.ToSlash(rel)] = h
		return nil
	})
	if os.IsNotExist(err) {
		return refs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}
