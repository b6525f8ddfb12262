// Package protocol defines the messages exchanged between the kiln CLI and
// the kiln daemon.
//
// Every message is a JSON envelope carrying a command name and an optional
// payload, written on a single line. A connection carries exactly one
// request and one response. The response command is [CmdOK] with a result
// payload, or [CmdError] with an [ErrorResult].
//
// Example usage:
//
//	env, payload, err := protocol.Call(ctx, paths.Socket(), protocol.CmdStatus, nil)
//	if err != nil {
//	    return err
//	}
//	status, err := protocol.DecodePayload[protocol.StatusResult](payload)
package protocol
