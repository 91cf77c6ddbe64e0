// Package storage persists the iteration audit trail written by the host:
// one RunRecord per executor event (started, finished, failed, stopped).
package storage
