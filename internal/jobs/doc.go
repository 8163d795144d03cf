// Package jobs implements background jobs for the Hiretrack API.
//
// Jobs run independently of HTTP request handling and share one lifecycle:
//
//	job := jobs.NewQueueMaintainer(jobs.QueueMaintainerConfig{Queue: q})
//	job.Start()
//	defer job.Stop()
//
// RunOnce performs a single pass and is what tests and manual triggers use.
//
// # Error Handling
//
// Jobs log errors but don't crash the application. A failed pass is retried
// on the next tick.
package jobs
