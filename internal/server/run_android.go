//go:build android

package server

import "context"

// The main thread has to stay free for the platform, so the loop gets a
// thread of its own.
func run(ctx context.Context, s *Server) int {
	return <-s.RunOnThread(ctx)
}
