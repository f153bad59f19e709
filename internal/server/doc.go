// Package server wires the supervisor service together.
//
// Server Lifecycle:
//  1. Load configuration from environment
//  2. Initialize logger (production or development)
//  3. Create metrics and the session manager
//  4. Setup HTTP routes, websocket endpoint and middleware
//  5. Start HTTP server
//  6. On shutdown, stop listening and tear every session down
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Run()
//	...
//	srv.Shutdown(ctx)
package server
