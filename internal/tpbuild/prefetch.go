package tpbuild

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// downloadConcurrency bounds parallel archive downloads so a flaky mirror
// cannot stall twenty transfers at once.
const downloadConcurrency = 4

// PrefetchDependencies downloads and extracts every dependency's sources in
// parallel. Archive-level file locks in the download manager keep concurrent
// fetches of shared extra downloads safe.
func PrefetchDependencies(ctx context.Context, dm *DownloadManager, deps []*Dependency) error {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(downloadConcurrency)
	for _, dep := range deps {
		dep := dep
		g.Go(func() error {
			return dm.DownloadDependency(dep)
		})
	}
	return g.Wait()
}
