// Package schedule turns trigger strings from the config file into
// robfig/cron schedules and fires callbacks on them.
//
// A trigger never runs work itself. The host wires each trigger to
// Executor.Start, which starts an idle executor or wakes one that waits in
// its inter-execution delay.
package schedule
