// Package batch orchestrates a full download run.
//
// The Orchestrator pulls candidates from the catalog enumerator, applies
// the configured filters, skips images the ledger already tracks, and
// hands the survivors to the fetch engine in bounded chunks. Every chunk
// is committed to the ledger as soon as it finishes, so a crash loses at
// most one in-flight chunk of bookkeeping.
//
// Example:
//
//	orch := batch.New(client, lgr, resolver, newEngine, settings, callbacks, log)
//	stats, err := orch.Run(ctx, batch.Options{
//		Filters: model.FilterSet{Object: "nebula"},
//		MaxTotal: 100,
//	})
package batch
