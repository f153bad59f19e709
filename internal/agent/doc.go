// Package agent resolves the wrapped agent executable and working
// directory, and composes the command lines used to start it.
//
// The agent is opaque: this package only knows its binary name, a resume
// flag and the extra arguments configured for each mode.
package agent
