// Package service defines the start/stop capability shared by the process's
// long-running pieces: the control-plane server and the job daemon.
package service

import "context"

// Service is anything with a lifecycle the process manages.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
