// Package cirrusd is a backup orchestrator daemon: it drives an external
// content-addressed deduplicating backup tool (restic-shaped) on a schedule,
// enforcing per-repository concurrency, cooperative cancellation, config
// hot-reload and a durable local snapshot/file index.
//
// Sub-packages are independently importable:
//
//	import "oss.nandlabs.io/cirrusd/bus"           // typed publish/subscribe event bus
//	import "oss.nandlabs.io/cirrusd/supervisor"    // backup-tool process supervision
//	import "oss.nandlabs.io/cirrusd/daemoncfg"     // TOML configuration store + reloader
//	import "oss.nandlabs.io/cirrusd/trigger"       // wall-clock DSL and cron triggers
//	import "oss.nandlabs.io/cirrusd/job"           // job specs, queue engine, runner, retry
//	import "oss.nandlabs.io/cirrusd/scheduler"     // next-fire computation and submission
//	import "oss.nandlabs.io/cirrusd/suspend"       // global suspend flag
//	import "oss.nandlabs.io/cirrusd/shutdown"      // graceful shutdown coordination
//	import "oss.nandlabs.io/cirrusd/signalhandler" // OS signal translation
//	import "oss.nandlabs.io/cirrusd/index"         // embedded snapshot/file index
package cirrusd
