package rpcapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// Config carries the §6 CLI-surface knobs the façade needs to stand up its
// transports: which of HTTP/WS are enabled, the address/port each binds,
// and which namespaces ("eth", "debug") each transport exposes.
type Config struct {
	EnableHTTP bool
	HTTPAddr   string
	HTTPPort   int
	HTTPAPIs   []string

	EnableWS bool
	WSAddr   string
	WSPort   int
	WSAPIs   []string
}

// Server hosts the JSON-RPC façade over HTTP and/or WebSocket, each
// transport getting its own *rpc.Server so --http.api and --ws.api can
// expose different namespace sets to the same process.
type Server struct {
	httpRPC *rpc.Server
	wsRPC   *rpc.Server

	httpSrv *http.Server
	wsSrv   *http.Server
}

// NewServer builds (but does not start) a Server from cfg and the given
// namespace registrations.
func NewServer(cfg Config, eth *EthAPI, debug *DebugAPI) (*Server, error) {
	available := map[string]interface{}{
		"eth":   eth,
		"debug": debug,
	}

	s := &Server{}

	if cfg.EnableHTTP {
		srv, err := newNamespacedServer(available, cfg.HTTPAPIs)
		if err != nil {
			return nil, err
		}
		s.httpRPC = srv
		s.httpSrv = &http.Server{
			Addr:              net.JoinHostPort(cfg.HTTPAddr, portStr(cfg.HTTPPort)),
			Handler:           srv,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	if cfg.EnableWS {
		srv, err := newNamespacedServer(available, cfg.WSAPIs)
		if err != nil {
			return nil, err
		}
		s.wsRPC = srv
		s.wsSrv = &http.Server{
			Addr:              net.JoinHostPort(cfg.WSAddr, portStr(cfg.WSPort)),
			Handler:           srv.WebsocketHandler([]string{"*"}),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return s, nil
}

func newNamespacedServer(available map[string]interface{}, namespaces []string) (*rpc.Server, error) {
	srv := rpc.NewServer()
	for _, ns := range namespaces {
		service, ok := available[ns]
		if !ok {
			return nil, fmt.Errorf("rpcapi: unknown namespace %q", ns)
		}
		if err := srv.RegisterName(ns, service); err != nil {
			return nil, err
		}
	}
	return srv, nil
}

func portStr(p int) string { return fmt.Sprintf("%d", p) }

// Start brings up every enabled transport's listener in its own goroutine.
// It returns once both listeners have been created (so a bind failure
// surfaces to the caller immediately) rather than once they've begun
// serving.
func (s *Server) Start() error {
	if s.httpSrv != nil {
		ln, err := net.Listen("tcp", s.httpSrv.Addr)
		if err != nil {
			return fmt.Errorf("rpcapi: http listen: %w", err)
		}
		go func() {
			if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
				log.Error("rpcapi: http server exited", "err", err)
			}
		}()
		log.Info("rpcapi: http server listening", "addr", ln.Addr())
	}
	if s.wsSrv != nil {
		ln, err := net.Listen("tcp", s.wsSrv.Addr)
		if err != nil {
			return fmt.Errorf("rpcapi: ws listen: %w", err)
		}
		go func() {
			if err := s.wsSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
				log.Error("rpcapi: ws server exited", "err", err)
			}
		}()
		log.Info("rpcapi: ws server listening", "addr", ln.Addr())
	}
	return nil
}

// Stop gracefully shuts down every running transport.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpRPC != nil {
		s.httpRPC.Stop()
	}
	if s.wsRPC != nil {
		s.wsRPC.Stop()
	}
	var err error
	if s.httpSrv != nil {
		if e := s.httpSrv.Shutdown(ctx); e != nil {
			err = e
		}
	}
	if s.wsSrv != nil {
		if e := s.wsSrv.Shutdown(ctx); e != nil {
			err = e
		}
	}
	return err
}
