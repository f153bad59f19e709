// Package pipeline turns decoded agent output into records.
//
// Interactive output first passes through a Conditioner, which removes
// redundant redraw sequences and whole-line repeats but never edits a line
// it forwards. Both modes then go through a Framer that tags each unit as
// structured or text and pulls out the agent's session identifier.
// Headless streams are cut into lines by a LineSplitter before framing.
package pipeline
