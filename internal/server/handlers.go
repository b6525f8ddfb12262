package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/engine"
	"github.com/cruciblehq/kiln/internal/loader"
	"github.com/cruciblehq/kiln/internal/protocol"
)

// Handles a build command.
//
// Loads the requested recipes and builds the target with the engine. The
// build is cancelled if the client disconnects.
func (s *Server) handleBuild(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.BuildRequest](payload)
	if err != nil {
		s.fail(conn, err)
		return
	}

	s.mu.Lock()
	s.active++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	result, err := s.build(ctx, req)
	if err != nil {
		if errors.Is(context.Cause(ctx), errClientGone) {
			slog.Warn("build abandoned by client", "target", req.Target)
			return
		}
		slog.Error("build failed", "target", req.Target, "error", err)
		s.fail(conn, err)
		return
	}

	s.mu.Lock()
	s.builds++
	s.mu.Unlock()

	s.respond(conn, protocol.CmdOK, &protocol.BuildResult{
		RunID:    result.RunID,
		Order:    result.Order,
		Built:    result.Built,
		Cached:   result.Cached,
		Installs: result.Installs,
	})
}

// Loads recipes and runs the engine for req.
func (s *Server) build(ctx context.Context, req *protocol.BuildRequest) (*engine.Result, error) {
	versions, err := loader.ParseVersions(req.Versions)
	if err != nil {
		return nil, err
	}
	catalog, err := loader.New(loader.WithVersions(versions)).Load(ctx, req.Recipes...)
	if err != nil {
		return nil, err
	}

	cfg := s.cfg.Engine
	if req.Jobs > 0 {
		cfg.Jobs = req.Jobs
	}
	if req.KeepWork != "" {
		cfg.KeepWork = engine.Retention(req.KeepWork)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	return eng.Run(ctx, req.Target, catalog)
}

// Handles a status command.
func (s *Server) handleStatus(conn net.Conn) {
	s.mu.Lock()
	builds, active := s.builds, s.active
	s.mu.Unlock()

	uptime := time.Since(s.startedAt).Truncate(time.Second)

	s.respond(conn, protocol.CmdOK, &protocol.StatusResult{
		Running: true,
		Version: internal.VersionString(),
		Pid:     os.Getpid(),
		Uptime:  uptime.String(),
		Builds:  builds,
		Active:  active,
	})
}

// Handles a shutdown command.
func (s *Server) handleShutdown(conn net.Conn) {
	s.respond(conn, protocol.CmdOK, nil)
	slog.Info("shutdown requested")

	go func() {
		s.Stop()
	}()
}
