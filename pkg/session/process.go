package session

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/rex/command"
	"github.com/grovetools/rex/pkg/registry"
	"github.com/grovetools/rex/pkg/transport"
)

// List returns the tracked processes in display order. Without force the
// persisted registry is returned as is and may be stale. With force the
// remote process table is queried and the registry reconciled against it:
// entries whose pid is gone are dropped and unknown runner pids are added
// under registry.ZombieName. Such an entry may belong to another session of
// this project or be an orphan of this one; the listing cannot tell which.
func (s *Session) List(ctx context.Context, force bool) ([]registry.TrackedProcess, error) {
	if !force {
		if err := s.reload(ctx); err != nil {
			return nil, err
		}
		return s.Registry.List(), nil
	}

	live, err := s.LivePIDs(ctx)
	if err != nil {
		return nil, err
	}
	var report registry.Report
	if err := s.mutate(ctx, func(reg *registry.Registry) { report = reg.Reconcile(live) }); err != nil {
		return nil, err
	}
	s.logger().WithFields(logrus.Fields{
		"live":       len(live),
		"reaped":     len(report.Reaped),
		"discovered": len(report.Discovered),
	}).Debug("reconciled")
	return s.Registry.List(), nil
}

// LivePIDs queries the remote process table for running runner scripts of
// this project.
func (s *Session) LivePIDs(ctx context.Context) ([]int, error) {
	res, err := transport.Run(ctx, s.t, command.ProcessList{Marker: s.runnerPrefix()})
	if err != nil {
		return nil, err
	}
	rows, err := registry.ParseProcessRows(res.Stdout, s.opts.Tolerant)
	if err != nil {
		return nil, err
	}
	return registry.Supervisors(rows), nil
}

// Kill signals the process at the 1-based index of the listing List(force)
// returns, or every process for index 0. Entries are not removed here; the
// next forced listing drops the ones that died. An empty registry makes Kill
// a no-op.
func (s *Session) Kill(ctx context.Context, index int, force bool) ([]registry.TrackedProcess, error) {
	if _, err := s.List(ctx, force); err != nil {
		return nil, err
	}
	targets, err := s.Registry.Select(index)
	if err != nil || len(targets) == 0 {
		return nil, err
	}

	if err := s.signal(ctx, targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// signal sends the kill signal to targets and to their direct children.
func (s *Session) signal(ctx context.Context, targets []registry.TrackedProcess) error {
	if _, err := transport.Run(ctx, s.t, command.Kill{PIDs: registry.PIDs(targets), Signal: s.opts.KillSignal, Children: true}); err != nil {
		return err
	}
	for _, p := range targets {
		s.logger().WithFields(logrus.Fields{"name": p.Name, "pid": p.PID}).Info("signalled")
	}
	return nil
}

// Purge signals every runner found in a fresh process listing.
func (s *Session) Purge(ctx context.Context) ([]registry.TrackedProcess, error) {
	return s.Kill(ctx, 0, true)
}
