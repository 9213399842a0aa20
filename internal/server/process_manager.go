package server

// ProcessStarter starts one external process per call.
type ProcessStarter interface {
	Start(cmd Command) (*ProcessRun, error)
}

var _ ProcessStarter = (*Runner)(nil)
