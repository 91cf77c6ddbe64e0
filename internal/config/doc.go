// Package config loads servicetask's configuration file.
//
// JSON and YAML are accepted (by extension). Both are decoded strictly:
// unknown keys and trailing data are errors, so typos surface at load time
// instead of silently disabling a task. Manager.Watch hot-reloads the file
// and publishes validated configs to subscribers.
package config
