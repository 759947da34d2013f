package driver

import (
	"context"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// TreeExts are the extensions ListTrees picks up.
var TreeExts = []string{".yaml", ".yml"}

// ListTrees expands directories into their tree documents, sorted for a
// deterministic order. Plain files are kept as given.
func ListTrees(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		var found []string
		err := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if path == p || isTree(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

func isTree(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range TreeExts {
		if ext == e {
			return true
		}
	}
	return false
}

// LowerFiles lowers every document concurrently, each in its own
// session. Results come back in input order. The only error returned is
// cancellation of ctx; per-document failures live in Result.Err and
// Result.Bag.
func LowerFiles(ctx context.Context, paths []string, opt Options) ([]*Result, error) {
	results := make([]*Result, len(paths))
	if len(paths) == 0 {
		return results, nil
	}
	jobs := opt.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(paths)))
	for i, path := range paths {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			// indexes are unique per goroutine, no lock needed
			results[i] = LowerFile(gctx, path, opt)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
