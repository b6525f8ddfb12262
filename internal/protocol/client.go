package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/cruciblehq/kiln/internal"
)

// Sends cmd with payload to the daemon listening on socketPath and returns
// its response.
//
// A [CmdError] response is returned as a [*RemoteError]. Cancelling ctx
// closes the connection, which the daemon treats as cancelling the request.
func Call(ctx context.Context, socketPath string, cmd Command, payload any) (*Envelope, json.RawMessage, error) {
	req, err := Encode(cmd, payload)
	if err != nil {
		return nil, nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := conn.Write(append(req, '\n')); err != nil {
		return nil, nil, callError(ctx, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, nil, callError(ctx, err)
	}

	env, raw, err := Decode(line)
	if err != nil {
		return nil, nil, err
	}
	if env.Command == CmdError {
		res, err := DecodePayload[ErrorResult](raw)
		if err != nil {
			return nil, nil, err
		}
		return nil, nil, &RemoteError{Message: res.Message, Kind: res.Kind}
	}
	return env, raw, nil
}

// Reports a connection error, preferring the interruption of ctx.
func callError(ctx context.Context, err error) error {
	if ierr := internal.Interrupted(ctx); ierr != nil {
		return ierr
	}
	return fmt.Errorf("%w: %w", ErrProtocol, err)
}
