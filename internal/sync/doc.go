// Package sync copies the remote topic listing into the site catalog.
//
// A run walks the listing page by page from page zero until an empty page,
// normalizing and upserting each record. Runs are serialized across
// processes by a lock key in the shared kv.Store; a run that finds the lock
// held ends immediately without error.
//
// # Profiles
//
// Two profiles exist. The periodic profile holds its lock for 10 minutes and
// retries rate-limited fetches 3 times. The bootstrap profile, used to fill
// an empty catalog, holds its lock for an hour and retries 5 times.
//
// # Triggers
//
//   - The coordinator subpackage runs the periodic profile on an interval.
//   - Bootstrapper.Check enqueues the bootstrap profile when the catalog is empty.
//   - Trigger.TriggerSync clears the page cache and enqueues a periodic run.
//
// Enqueued runs are executed one at a time by Queue.Run.
//
// # Failure policy
//
// A record that fails to decode, lacks an ID, or fails validation is logged
// and skipped. Fetch failures surface as an empty page, which ends the run.
// The lock is released on every exit path once acquired.
package sync
