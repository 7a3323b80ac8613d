// Package api declares HTTP contracts and route registration helpers.
package api

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithAdminToken enables the destructive endpoints, gated on the token.
func WithAdminToken(token string) Option {
	return func(s *Server) {
		s.adminHandler.token = token
	}
}
