// Package launch spawns the agent process.
//
// In interactive mode a shell runs the composed agent command on the slave
// side of a pseudo-terminal, as a session leader with the terminal as its
// controlling tty. In headless mode the agent runs directly with stdout and
// stderr on separate pipes, in its own process group.
//
// A Child owns every descriptor the supervisor keeps for it and closes each
// exactly once. Signals go to the whole process group.
package launch
