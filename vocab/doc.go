// Package vocab is the vocabulary store: lists of learning items owned by a
// caller, read through a deduplicating tiered cache and written in chunked,
// retried transactions.
//
// Every operation takes the caller id explicitly. Reads of records the caller
// may not see are reported as not found, so a caller cannot probe for the
// existence of other owners' private lists. Writes on records owned by someone
// else are reported as access denied.
//
// Batch operations never fail as a whole: they return a BatchResult listing
// the outcome of every input by its original index.
//
//	svc, err := vocab.NewService(backend, fetcher,
//		vocab.WithConfig(cfg),
//		vocab.WithEmitter(emitter),
//		vocab.WithLogger(logger),
//	)
//	res := svc.AddBatch(ctx, callerID, inputs)
//	for _, f := range res.Failed {
//		log.Printf("item %d: %v", f.Index, f.Err)
//	}
package vocab
