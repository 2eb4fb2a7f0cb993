// Package queue schedules ingestion work items across a bounded worker pool.
//
// The Queue is the single owner of item state. Ready items are admitted in
// priority order (FIFO within a priority) while fewer than MaxWorkers are
// active. Before every stage the queue reserves the stage's rate budgets; an
// item whose budget is short moves to the waiting set with a not-before time
// and gives its worker back, so waiting never occupies a worker. Transient
// failures are rescheduled through the same waiting set using the retry
// policy.
//
// Every state change is published to the progress reporter. Overall progress
// is derived from configured stage weights, never decreases, and stops after
// the terminal event.
package queue
