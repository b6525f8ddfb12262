// Package server implements the kiln build daemon.
//
// The daemon listens on a Unix domain socket for JSON-encoded commands from
// the kiln CLI. Each connection carries a single request-response exchange:
// the client sends a newline-delimited JSON envelope, the server dispatches
// the command, and writes the result back before closing the connection.
//
// Supported commands are building a target, querying daemon status, and
// initiating shutdown. Build commands load recipes with the loader package
// and run them with the engine package. A client that disconnects while its
// build runs cancels the build.
//
// Example usage:
//
//	srv, err := server.New(server.Config{
//	    Engine: engine.Config{Jobs: 4},
//	})
//	if err != nil {
//	    return err
//	}
//
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
//	srv.Wait()
package server
