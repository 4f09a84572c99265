// Package executor runs the live observing schedule.
//
// One loop goroutine owns the schedule. Submission requests arrive from a
// coordination store watch and are funneled into that loop over a channel;
// a periodic tick hands every session whose first command is within the
// dispatch horizon to the worker pool as one group. Workers wait for each
// command's instant, dispatch it to the telescope controller and record the
// session lifecycle in the state store.
package executor
