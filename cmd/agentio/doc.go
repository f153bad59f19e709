// Command agentio supervises a terminal coding agent and streams its output
// to websocket clients.
//
// Each websocket connection on /stream owns one session. A session runs the
// agent either interactively on a pseudo-terminal or headless on pipes,
// frames the output into records and forwards them to the client. REST
// routes list, inspect and abort sessions.
//
// Configuration comes from the environment (see internal/infrastructure/config);
// a few common settings can also be given as flags:
//
//	agentio -port 8000 -agent claude -dev
//
// SIGINT or SIGTERM stops the listener and tears every session down before
// the process exits.
package main
