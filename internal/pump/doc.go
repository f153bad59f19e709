// Package pump bridges blocking descriptors to a callback.
//
// Run owns one goroutine per session. It waits for readability with a
// bounded poll so it can notice three things without any data arriving:
// the child being reaped, the caller asking it to stop, and idle periods.
// Reads are decoded as UTF-8 with invalid bytes replaced.
package pump
