// Package ingestion drives registered source files through vectorization.
//
// Every file moves through a small state machine:
//
//	None -> Wait -> Vectoring -> Done
//	                          -> Fail -> (retried while RetryCount < max)
//
// A scheduling pass (Pipeline.RunOnce) picks eligible files most recently
// updated first, claims each one with an atomic conditional transition to
// Vectoring, and processes the claimed files concurrently on a worker pool:
// load, chunk, embed, store. Processing failures never escape a pass. They
// move the file to Fail and increment its retry count.
//
// Claims carry a lease. Files left in Vectoring longer than the lease (for
// example after a crash) are moved to Fail at the start of the next pass so
// they become eligible again.
package ingestion
