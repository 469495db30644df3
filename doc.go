// Package sagascope provides the building blocks for undoing partially
// completed multi-step operations when a later step fails: the
// compensating-transaction ("saga") pattern applied to in-process,
// sequential workflows.
//
// Overview
//
//  1. Run your forward steps inside an Operation chain:
//     - Use NewOperation and Step to sequence the work.
//  2. Register a compensation right after each side effect succeeds:
//     - Call Register from within a step; the saga Scope is created lazily
//       on first use.
//  3. Let the chain resolve the scope:
//     - Overall success commits the scope and discards the undo actions.
//     - A step error or recovered panic rolls the scope back, invoking the
//       registered compensations in reverse registration order.
//  4. Inspect the outcome:
//     - The scope's counters and CompensationErrors stay observable after
//       rollback; BuildReport summarizes durations, and a Journal or
//       Metrics subscriber can watch the lifecycle events.
//
// Rollback is best-effort: one compensation's failure never prevents the
// remaining ones from being attempted, and the rollback call itself never
// raises. All state is in-memory and lost on crash; sagascope does not
// coordinate across processes.
//
// For a runnable walkthrough, see examples/trip-booking.
package sagascope
