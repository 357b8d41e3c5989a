// Package events records governance events produced while enhanced methods
// run: calls blocked by flow control, interceptor failures and rule reloads.
//
// # Architecture
//
//  1. Recorder - stamps events with an id and time and writes them
//     asynchronously so interceptors never wait on storage
//  2. Store - persists events (in memory, or SQLite through either the pure
//     Go modernc driver or the cgo mattn driver)
//  3. Pruner and RetentionScheduler - enforce the retention period and the
//     record cap on a cron schedule
//
// # Basic Usage
//
//	store, err := events.Open(&cfg.Events)
//	if err != nil {
//	    return err
//	}
//	rec := events.NewRecorder(store)
//	defer rec.Close(ctx)
//
//	rec.Record(&events.Event{
//	    Kind:        events.KindFlowBlocked,
//	    Method:      inv.Method().String(),
//	    Interceptor: "flow",
//	    Message:     "qps limit exceeded",
//	})
//
// # Querying
//
// Query returns events newest first:
//
//	recent, err := store.Query(ctx, events.Filter{Kind: events.KindFlowBlocked, Limit: 20})
package events
