// Package terminal allocates and configures pseudo-terminals.
//
// Open returns a master/slave pair with cooked-mode line discipline and the
// requested window size already applied, so the first thing the child sees
// is a correctly sized, echoing terminal. Resize forwards later window
// changes. Failures to configure the terminal never fail the allocation.
package terminal
