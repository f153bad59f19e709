// Package bridge moves framed records from a session's blocking pump to an
// asynchronous consumer.
//
// The pump calls Deliver, which waits a bounded time for queue space and
// drops the record when none appears. A single consumer goroutine per
// bridge calls the Sink, so records arrive in the order they were framed.
// The first agent session identifier seen is captured and reported once.
package bridge
