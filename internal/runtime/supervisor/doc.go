// Package supervisor runs the daemon's long-lived goroutines (config
// watcher, metrics server) with panic recovery and restart backoff.
package supervisor
