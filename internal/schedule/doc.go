// Package schedule defers broadcasts to future trigger times.
//
// A Scheduler wraps the dispatch engine with one-shot tasks (fire once at a
// given time, cancelable until then) and named cron recurrences. All fired
// work funnels through one worker goroutine, so scheduled broadcasts execute
// strictly one at a time.
package schedule
