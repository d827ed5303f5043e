// Package builder rebuilds the SQLite mirror and the KiCad descriptor from the
// CSV record store.
//
// Overview
//
// The builder is the synchronization engine of the catalog. Every trigger (the
// manual build command, the change watcher reacting to external edits, and the
// watcher reacting to API writes) goes through the same Build operation and
// names the affected tables explicitly with a TableSet.
//
// Architecture
//
//	Record store (db/*.csv)
//	     │
//	     ▼
//	  Builder ──► Mirror (parts.sqlite, one table per CSV)
//	     │
//	     └──────► Descriptor (KiPLM.kicad_dbl)
//
// A build runs these steps:
//
//  1. Read every table in the store. Unreadable tables get a failed read step
//     and their mirror tables are left alone.
//  2. Drop mirror tables whose CSV file is gone.
//  3. Replace each changed table (or every table on a full build) in one
//     transaction.
//  4. Regenerate the descriptor from all readable tables.
//
// Steps never abort their siblings. When any step fails Build returns the
// complete report together with a *PartialFailureError.
//
// Usage
//
//	b, err := builder.New(st, m, builder.Config{
//	    DescriptorPath: "kicad_libs/KiPLM.kicad_dbl",
//	    Logger:         logger,
//	})
//	if err != nil {
//	    return err
//	}
//
//	// Full build
//	report, err := b.Build(ctx, nil)
//
//	// Partial build after RES.csv changed
//	report, err = b.Build(ctx, builder.NewTableSet("RES"))
//
// Concurrency
//
// Builds are serialized: the mirror has a single writer. Readers of the mirror
// see each table either before or after its replacement.
package builder
