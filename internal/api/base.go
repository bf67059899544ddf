// Package api serves read-only zap quotes, positions and the chain list
// over HTTP.
package api

import "go.uber.org/zap"

// BaseHandler provides common dependencies for HTTP handlers.
type BaseHandler struct {
	logger *zap.Logger
}

func newBase(logger *zap.Logger) BaseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return BaseHandler{logger: logger}
}
