// Package config loads Hiretrack configuration from environment variables.
//
// Settings are grouped by component (Server, Database, JWT, Redis, Queue,
// Worker, Notify, Lifecycle and RateLimit). Load never fails on a malformed
// value; it falls back to the default and Validate reports every remaining
// problem at once:
//
//	cfg, _ := config.Load()
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// Notable variables:
//
//	DB_DRIVER          memory | surreal (default surreal)
//	QUEUE_BACKEND      memory | redis (default memory)
//	WORKER_EMBEDDED    run the notification worker inside the API process
//	NOTIFY_TRANSPORT   log | smtp | webhook
//	LIFECYCLE_POLICY   strict | permissive
//	RATE_LIMIT_BACKEND memory | redis
package config
