// Package contextmem implements an adaptive user-context memory: a small,
// capacity-bounded knowledge store that passively learns facts and
// behavioral patterns about a user and ranks them for prompt injection.
//
// # Core Concepts
//
// The single entity is the ContextItem: one (category, key) -> value record
// with a confidence score. Identity is the normalized (category, key) pair;
// a repeated observation reinforces the existing item instead of creating a
// duplicate, raising confidence asymptotically toward 1.0:
//
//	confidence' = confidence + (1 - confidence) * boost
//
// where the boost depends on the item's source: explicit user statements
// move confidence further per step than passively extracted signals.
//
// # Retention
//
// The store holds at most 100 items. An insert at capacity evicts the single
// lowest stored-confidence item. The Maintainer additionally runs a periodic
// three-pass sweep: stale items (unaccessed past the 90-day window and
// decayed below the 0.1 floor) go first, then weak pattern items (too few
// data points for their age), then any excess over capacity in ascending
// effective-confidence order.
//
// # The Access Feedback Loop
//
// Ranked retrieval (Ranker.Relevant, Ranker.RelevantForIntent) marks every
// returned item accessed in a single batched transaction. Accessed items
// hold their confidence; unaccessed items decay toward the staleness floor
// and are eventually pruned. This feedback loop, where use keeps knowledge
// alive and disuse lets it fade, is the central design property of the engine.
//
// # Usage
//
//	store, err := contextmem.NewStore(contextmem.NewMemoryBackend(), logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := contextmem.NewService(store, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Record an explicit statement
//	_, err = svc.Remember(ctx, contextmem.CategoryGoal, "fitness",
//	    "training for a half marathon in June", contextmem.SourceExplicit)
//
//	// Retrieve ranked context for a prompt
//	items, err := svc.RelevantContext(ctx, "plan my run", 5, 0.3)
//	prompt := contextmem.FormatForPrompt(items)
//
// Persistence is pluggable through the Backend interface; internal/storage
// provides a SQLite implementation and NewMemoryBackend an in-memory one.
package contextmem
