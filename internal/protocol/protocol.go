package protocol

import (
	"encoding/json"
	"fmt"
)

// Names a request or response.
type Command string

const (
	CmdBuild    Command = "build"    // Build a target.
	CmdStatus   Command = "status"   // Report daemon status.
	CmdShutdown Command = "shutdown" // Stop the daemon.
	CmdOK       Command = "ok"       // Successful response.
	CmdError    Command = "error"    // Failed response.
)

// Wire format of every message.
type Envelope struct {
	Command Command         `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Requests a build of Target from the recipes found at Recipes.
type BuildRequest struct {
	Target   string   `json:"target"`
	Recipes  []string `json:"recipes"`
	Versions []string `json:"versions,omitempty"` // "name=version" overrides.
	Jobs     int      `json:"jobs,omitempty"`
	KeepWork string   `json:"keep_work,omitempty"`
}

// Response to a successful build.
type BuildResult struct {
	RunID    string            `json:"run_id"`
	Order    []string          `json:"order"`
	Built    []string          `json:"built"`
	Cached   []string          `json:"cached"`
	Installs map[string]string `json:"installs"`
}

// Response to a status request.
type StatusResult struct {
	Running bool   `json:"running"`
	Version string `json:"version"`
	Pid     int    `json:"pid"`
	Uptime  string `json:"uptime"`
	Builds  int    `json:"builds"` // Builds completed since start.
	Active  int    `json:"active"` // Builds in progress.
}

// Response to a failed request.
type ErrorResult struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"` // Error class, such as "cancelled".
}

// Encodes an envelope for cmd with payload. A nil payload is omitted.
func Encode(cmd Command, payload any) ([]byte, error) {
	env := Envelope{Command: cmd}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding %s payload: %w", ErrProtocol, cmd, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decodes an envelope, returning it together with its raw payload.
func Decode(data []byte) (*Envelope, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if env.Command == "" {
		return nil, nil, fmt.Errorf("%w: missing command", ErrProtocol)
	}
	return &env, env.Payload, nil
}

// Decodes a payload into a value of type T.
func DecodePayload[T any](payload json.RawMessage) (*T, error) {
	var v T
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: missing payload", ErrProtocol)
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return &v, nil
}
