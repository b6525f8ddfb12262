package protocol

import (
	"bufio"
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/cruciblehq/kiln/internal"
	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecode(t *testing.T) {
	req := &BuildRequest{Target: "librdkafka", Recipes: []string{"recipes"}, Versions: []string{"zlib=1.3"}, Jobs: 2}

	data, err := Encode(CmdBuild, req)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	env, payload, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if env.Command != CmdBuild {
		t.Fatalf("Command = %q, want %q", env.Command, CmdBuild)
	}
	got, err := DecodePayload[BuildRequest](payload)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if diff := cmp.Diff(req, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeNilPayload(t *testing.T) {
	data, err := Encode(CmdStatus, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"command":"status"}` {
		t.Fatalf("Encode() = %s", data)
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, in := range []string{`not json`, `{}`, `{"payload":{}}`} {
		if _, _, err := Decode([]byte(in)); !errors.Is(err, ErrProtocol) {
			t.Errorf("Decode(%s) error = %v, want ErrProtocol", in, err)
		}
	}
	if _, err := DecodePayload[BuildRequest](nil); !errors.Is(err, ErrProtocol) {
		t.Errorf("DecodePayload(nil) error = %v, want ErrProtocol", err)
	}
}

// Serves one connection on a temporary socket with handle.
func serveOnce(t *testing.T, handle func(net.Conn)) string {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "kiln.sock")
	l, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()
	return sock
}

func TestCall(t *testing.T) {
	sock := serveOnce(t, func(conn net.Conn) {
		line, err := bufio.NewReader(conn).ReadBytes('\n')
		if err != nil {
			return
		}
		env, _, err := Decode(line)
		if err != nil || env.Command != CmdStatus {
			return
		}
		data, _ := Encode(CmdOK, &StatusResult{Running: true, Pid: 42})
		conn.Write(append(data, '\n'))
	})

	env, payload, err := Call(context.Background(), sock, CmdStatus, nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if env.Command != CmdOK {
		t.Fatalf("Command = %q, want ok", env.Command)
	}
	status, err := DecodePayload[StatusResult](payload)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Running || status.Pid != 42 {
		t.Fatalf("status = %+v", status)
	}
}

func TestCallRemoteError(t *testing.T) {
	sock := serveOnce(t, func(conn net.Conn) {
		bufio.NewReader(conn).ReadBytes('\n')
		data, _ := Encode(CmdError, &ErrorResult{Message: "boom", Kind: "aborted"})
		conn.Write(append(data, '\n'))
	})

	_, _, err := Call(context.Background(), sock, CmdShutdown, nil)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("error = %v, want RemoteError", err)
	}
	if remote.Message != "boom" || remote.Kind != "aborted" {
		t.Fatalf("RemoteError = %+v", remote)
	}
}

func TestCallUnavailable(t *testing.T) {
	_, _, err := Call(context.Background(), filepath.Join(t.TempDir(), "missing.sock"), CmdStatus, nil)
	if !errdefs.IsUnavailable(err) {
		t.Fatalf("error = %v, want unavailable", err)
	}
}

func TestCallCancelled(t *testing.T) {
	closed := make(chan struct{})
	sock := serveOnce(t, func(conn net.Conn) {
		r := bufio.NewReader(conn)
		r.ReadBytes('\n')
		// Block until the client hangs up.
		r.ReadByte()
		close(closed)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, _, err := Call(ctx, sock, CmdBuild, &BuildRequest{Target: "zlib"})
	if !errors.Is(err, internal.ErrCancelled) {
		t.Fatalf("error = %v, want ErrCancelled", err)
	}

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not observe the disconnect")
	}
}
