package main

import (
	"errors"
	"fmt"

	"github.com/kiplm/kiplm/internal/catalog/builder"
	"github.com/kiplm/kiplm/internal/catalog/mirror"
	"github.com/kiplm/kiplm/internal/catalog/store"
)

// errBuildFailed is returned after a build whose failed steps were already
// printed; main exits 1 without printing it again.
var errBuildFailed = errors.New("build failed")

// catalog bundles the store, mirror and builder opened from the config.
type catalog struct {
	store   *store.Store
	mirror  *mirror.DB
	builder *builder.Builder
}

// openCatalog opens the mirror and wires a builder to it. notify may be nil.
func openCatalog(notify func(*builder.Report)) (*catalog, error) {
	st := store.New(cfg.DBDir)

	m, err := mirror.Open(cfg.MirrorPath)
	if err != nil {
		return nil, err
	}

	b, err := builder.New(st, m, builder.Config{
		DescriptorPath: cfg.DescriptorPath,
		Name:           cfg.LibraryName,
		Logger:         logger,
		Notify:         notify,
	})
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("failed to create builder: %w", err)
	}

	return &catalog{store: st, mirror: m, builder: b}, nil
}

func (c *catalog) Close() error {
	return c.mirror.Close()
}
