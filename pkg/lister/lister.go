package lister

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/llx/pkg/protocol"
)

// Options controls one listing.
type Options struct {
	// All includes entries whose name starts with a dot.
	All bool
}

// Lister reads directories into protocol entries.
type Lister struct {
	workers int
	log     *logrus.Logger
}

// New creates a lister that stats up to workers files at once. A non-positive
// workers uses the number of CPUs.
func New(workers int, log *logrus.Logger) *Lister {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if log == nil {
		log = logrus.New()
	}
	return &Lister{workers: workers, log: log}
}

// List returns the entries of dir sorted by name. If dir is not a directory,
// the result is the single entry for it. Entries that disappear while the
// listing runs are skipped. Entry paths are absolute.
func (l *Lister) List(ctx context.Context, dir string, opts Options) ([]protocol.Entry, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	dir = abs

	info, err := os.Lstat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return []protocol.Entry{{Path: dir, Metadata: metadataOf(info)}}, nil
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	// ReadDir returns names sorted.
	var names []string
	for _, de := range dirEntries {
		if !opts.All && strings.HasPrefix(de.Name(), ".") {
			continue
		}
		names = append(names, de.Name())
	}

	results := make([]*protocol.Entry, len(names))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(l.workers)

	for i, name := range names {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(dir, name)
			info, err := os.Lstat(path)
			if errors.Is(err, fs.ErrNotExist) {
				l.log.Debugf("Entry vanished during listing: %s", path)
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to stat %s: %w", path, err)
			}
			results[i] = &protocol.Entry{Path: path, Metadata: metadataOf(info)}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	entries := make([]protocol.Entry, 0, len(results))
	for _, e := range results {
		if e != nil {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}

func metadataOf(info fs.FileInfo) *protocol.EntryMetadata {
	md := &protocol.EntryMetadata{
		Size:        uint64(info.Size()),
		Modified:    unixSeconds(info.ModTime().Unix()),
		IsDir:       info.IsDir(),
		IsFile:      info.Mode().IsRegular(),
		IsSymlink:   info.Mode()&fs.ModeSymlink != 0,
		Permissions: uint32(info.Mode().Perm()),
	}
	fillPlatform(md, info)
	return md
}

func unixSeconds(s int64) uint64 {
	if s < 0 {
		return 0
	}
	return uint64(s)
}
