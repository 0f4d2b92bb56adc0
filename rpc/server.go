// Copyright 2015 The CortexTheseus Authors
// This file is part of the CortexTheseus library.
//
// The CortexTheseus library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The CortexTheseus library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the CortexTheseus library. If not, see <http://www.gnu.org/licenses/>.

// Package rpc is corevm's diagnostics server: an HTTP+WebSocket
// introspection surface over a runtime.VM, the teacher's RPC server
// shape (httprouter routing, rs/cors, an atomic running flag, a
// gorilla/websocket notification channel) repurposed from JSON-RPC
// method dispatch to read-only runtime introspection, since corevm
// has no user-facing RPC API of its own.
package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/CortexFoundation/corevm/rlog"
	"github.com/CortexFoundation/corevm/runtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes a runtime.VM's internal state over HTTP for
// debugging: the registered thread count, a manual GC trigger, and a
// WebSocket feed of periodic stats for a live dashboard.
type Server struct {
	vm  *runtime.VM
	log *rlog.Logger

	httpSrv *http.Server

	mu   sync.Mutex
	wsConns map[*websocket.Conn]struct{}
	run  atomic.Bool

	statsInterval time.Duration
}

// NewServer builds a diagnostics server fronting vm. addr is passed to
// http.Server.Addr when Start is called.
func NewServer(vm *runtime.VM, addr string) *Server {
	s := &Server{
		vm:            vm,
		log:           rlog.Default.WithPrefix("rpc"),
		wsConns:       make(map[*websocket.Conn]struct{}),
		statsInterval: time.Second,
	}

	router := httprouter.New()
	router.GET("/threads", s.handleThreads)
	router.POST("/gc", s.handleRequestGC)
	router.GET("/ws", s.handleWebSocket)

	handler := cors.New(cors.Options{AllowedOrigins: []string{"*"}}).Handler(router)
	s.httpSrv = &http.Server{Addr: addr, Handler: handler}
	return s
}

// Start begins serving in a background goroutine. It returns
// immediately; errors from the listener are logged, matching the
// teacher's fire-and-forget ListenAndServe pattern for its own
// auxiliary servers.
func (s *Server) Start() {
	if !s.run.CompareAndSwap(false, true) {
		return
	}
	go s.broadcastStats()
	go func() {
		s.log.Info("diagnostics server listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("diagnostics server stopped", "err", err)
		}
	}()
}

// Stop gracefully shuts the HTTP server down and closes any open
// WebSocket connections.
func (s *Server) Stop() {
	if !s.run.CompareAndSwap(true, false) {
		return
	}
	s.log.Debug("diagnostics server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.httpSrv.Shutdown(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.wsConns {
		c.Close()
		delete(s.wsConns, c)
	}
}

type threadsResponse struct {
	Count int `json:"count"`
}

func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	resp := threadsResponse{Count: s.vm.Registry().Count()}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleRequestGC(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := s.vm.RequestGC(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	s.mu.Lock()
	s.wsConns[conn] = struct{}{}
	s.mu.Unlock()

	// Drain and discard client messages so a dropped connection is
	// detected promptly; this feed is server-to-client only.
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.wsConns, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) broadcastStats() {
	ticker := time.NewTicker(s.statsInterval)
	defer ticker.Stop()
	for s.run.Load() {
		<-ticker.C
		msg := threadsResponse{Count: s.vm.Registry().Count()}
		payload, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		s.mu.Lock()
		for c := range s.wsConns {
			if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				delete(s.wsConns, c)
			}
		}
		s.mu.Unlock()
	}
}
