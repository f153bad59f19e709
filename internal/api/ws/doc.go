// Package ws serves the websocket surface of the supervisor.
//
// Each connection owns one supervised session. The connection is also the
// session's delivery sink: every output record becomes a server message.
//
// Message Types (Client → Server):
//   - start: launch the agent (mode, workdir, resume_id, rows, cols, prompt, stdin, conditioner)
//   - input: write data to the agent's input
//   - resize: change the terminal geometry
//   - abort: tear the current run down
//   - info: request a session snapshot
//   - ping: keep-alive ping
//
// Message Types (Server → Client):
//   - connected: the session id bound to this connection
//   - started: snapshot after a successful start
//   - output: a structured or text record
//   - notice: a supervisor notice such as a failed resume
//   - exit: the final record of a run
//   - agent_session: the agent's own session id, once captured
//   - aborted: teardown step results
//   - error: a request could not be served
//   - pong: reply to ping
//
// Example Usage:
//
//	handler := ws.NewHandler(manager, ws.Options{Logger: log})
//	router.GET("/stream", handler.HandleConnection)
package ws
