// Package transport hosts remote transform plugins over gRPC.
package transport

import (
	"net"

	"google.golang.org/grpc"

	pluginv1 "taskflow/api/plugin/v1"
)

type Server struct {
	grpc *grpc.Server
	lis  net.Listener
}

// Listen binds addr and registers impl. Call Serve to start handling calls.
func Listen(addr string, impl pluginv1.TransformServer, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		grpc: grpc.NewServer(opts...),
		lis:  lis,
	}
	pluginv1.RegisterTransformServer(s.grpc, impl)
	return s, nil
}

func (s *Server) Addr() string { return s.lis.Addr().String() }

// Serve blocks until Stop is called or the listener fails.
func (s *Server) Serve() error {
	return s.grpc.Serve(s.lis)
}

func (s *Server) Stop() {
	s.grpc.GracefulStop()
}
