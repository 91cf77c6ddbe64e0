// Package servicetask implements a repeatable background task executor.
//
// An Executor owns exactly one goroutine per run. The goroutine loops:
//
//	run Worker.Execute -> decide repeat/delay/retry -> run again
//
// until the work is not repeatable, MaxExecutions is reached, an unretried
// failure occurs, or Stop cancels the run.
//
// Two independent signals exist per executor:
//   - the run context, cancelled by Stop/Close, observed by Execute and by
//     every wait;
//   - the wake signal, cancelled by Start while already running, which only
//     shortens a pending inter-execution wait. It is consumed once and reset.
//
// Failures never leave the loop. Callers observe them through Errors,
// Executions, the injected logx.Logger and the optional event bus.
package servicetask
