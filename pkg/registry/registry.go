// Package registry tracks the jobs launched on a host and reconciles that
// record against the host's live process table.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	rexerrors "github.com/grovetools/rex/errors"
)

// ZombieName labels a live process that carries the runner marker but was
// never recorded at launch. It may be an orphan of this session or a job of
// another session on the same host; the two cannot be told apart.
const ZombieName = "zombie/spawn"

// State describes what is known about a tracked entry.
type State int

const (
	// StateLaunched is the state of an entry recorded at launch and not yet reconciled.
	StateLaunched State = iota
	// StateAlive indicates the pid was present in the latest process table.
	StateAlive
	// StateReaped indicates the pid was absent from the latest process table.
	// Reaped entries only appear in a Report; the registry drops them.
	StateReaped
	// StateZombie indicates the pid was discovered in the process table only.
	StateZombie
)

var states = []string{
	"Launched",
	"Alive",
	"Reaped",
	"Zombie",
}

func (s State) String() string {
	if int(s) < 0 || int(s) >= len(states) {
		return "Unknown"
	}
	return states[s]
}

// MarshalText stores the state by its lower-case name.
func (s State) MarshalText() ([]byte, error) {
	if int(s) < 0 || int(s) >= len(states) {
		return nil, fmt.Errorf("invalid process state %d", int(s))
	}
	return []byte(strings.ToLower(s.String())), nil
}

// UnmarshalText parses a state name, ignoring case.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range states {
		if strings.EqualFold(name, string(text)) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown process state %q", string(text))
}

// TrackedProcess is one job handle.
type TrackedProcess struct {
	Name  string `yaml:"name" mapstructure:"name" json:"name"`
	PID   int    `yaml:"pid" mapstructure:"pid" json:"pid"`
	Token string `yaml:"token,omitempty" mapstructure:"token" json:"token,omitempty"`
	State State  `yaml:"state" mapstructure:"state" json:"state"`
}

// Discovered reports whether the entry came from the process table rather than a launch.
func (p TrackedProcess) Discovered() bool {
	return p.State == StateZombie
}

func (p TrackedProcess) String() string {
	if p.Token != "" {
		return fmt.Sprintf("%s[%d:%s]", p.Name, p.PID, p.Token)
	}
	return fmt.Sprintf("%s[%d]", p.Name, p.PID)
}

// NewToken returns a fresh tracker token.
func NewToken() string {
	return uuid.NewString()
}

// Registry is an ordered list of tracked processes, unique by pid.
// Position i (0-based) is exposed to users as index i+1; index 0 means all.
type Registry struct {
	Processes []TrackedProcess `yaml:"processes" mapstructure:"processes" json:"processes"`
}

// Len returns the number of tracked entries.
func (r *Registry) Len() int {
	return len(r.Processes)
}

// List returns a copy of the entries in display order.
func (r *Registry) List() []TrackedProcess {
	out := make([]TrackedProcess, len(r.Processes))
	copy(out, r.Processes)
	return out
}

// Lookup returns the entry for pid.
func (r *Registry) Lookup(pid int) (TrackedProcess, bool) {
	for _, p := range r.Processes {
		if p.PID == pid {
			return p, true
		}
	}
	return TrackedProcess{}, false
}

// Append records p as launched. An existing entry with the same pid is
// replaced in place, since the operating system has reused the id.
func (r *Registry) Append(p TrackedProcess) {
	p.State = StateLaunched
	for i := range r.Processes {
		if r.Processes[i].PID == p.PID {
			r.Processes[i] = p
			return
		}
	}
	r.Processes = append(r.Processes, p)
}

// Report summarizes one reconciliation.
type Report struct {
	Reaped     []TrackedProcess
	Discovered []TrackedProcess
}

// Changed reports whether the reconciliation altered the registry.
func (r Report) Changed() bool {
	return len(r.Reaped) > 0 || len(r.Discovered) > 0
}

// Reconcile makes the registry agree with the set of live pids: entries whose
// pid is not live are dropped and reported as reaped, launched entries still
// live become alive, and live pids without an entry are appended as
// ZombieName in ascending pid order. Calling it again with the same set is a no-op.
func (r *Registry) Reconcile(live []int) Report {
	alive := make(map[int]bool, len(live))
	for _, pid := range live {
		alive[pid] = true
	}

	var report Report
	kept := make([]TrackedProcess, 0, len(r.Processes))
	known := make(map[int]bool, len(r.Processes))
	for _, p := range r.Processes {
		if !alive[p.PID] || known[p.PID] {
			if !known[p.PID] {
				p.State = StateReaped
				report.Reaped = append(report.Reaped, p)
			}
			continue
		}
		known[p.PID] = true
		if p.State != StateZombie {
			p.State = StateAlive
		}
		kept = append(kept, p)
	}

	pids := make([]int, 0, len(alive))
	for pid := range alive {
		if !known[pid] {
			pids = append(pids, pid)
		}
	}
	sort.Ints(pids)
	for _, pid := range pids {
		p := TrackedProcess{Name: ZombieName, PID: pid, State: StateZombie}
		kept = append(kept, p)
		report.Discovered = append(report.Discovered, p)
	}

	r.Processes = kept
	return report
}

// Remove drops the entries with the given pids.
func (r *Registry) Remove(pids ...int) {
	drop := make(map[int]bool, len(pids))
	for _, pid := range pids {
		drop[pid] = true
	}
	kept := r.Processes[:0]
	for _, p := range r.Processes {
		if !drop[p.PID] {
			kept = append(kept, p)
		}
	}
	r.Processes = kept
}

// Select resolves a user-facing index. Index 0 selects every entry; index n
// selects the nth entry. An empty registry selects nothing for any index.
func (r *Registry) Select(index int) ([]TrackedProcess, error) {
	if len(r.Processes) == 0 {
		return nil, nil
	}
	switch {
	case index == 0:
		return r.List(), nil
	case index > 0 && index <= len(r.Processes):
		return []TrackedProcess{r.Processes[index-1]}, nil
	default:
		return nil, rexerrors.InvalidArgument(
			fmt.Sprintf("process index %d out of range (1-%d, or 0 for all)", index, len(r.Processes))).
			WithDetail("index", index)
	}
}

// PIDs returns the pids of procs in order.
func PIDs(procs []TrackedProcess) []int {
	out := make([]int, len(procs))
	for i, p := range procs {
		out[i] = p.PID
	}
	return out
}
