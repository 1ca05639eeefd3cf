//go:build !android

package server

import "context"

func run(ctx context.Context, s *Server) int {
	return s.Run(ctx)
}
