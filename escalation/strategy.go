package escalation

import (
	"context"
	"strings"
	"sync"

	"github.com/goliatone/go-inbox/core"
)

// EmployeeDirectory lists the employees eligible to receive queue entries
// for a workspace. Owned by the external employee-management subsystem.
type EmployeeDirectory interface {
	ListEmployees(ctx context.Context, workspaceID string) ([]string, error)
}

// StaticEmployeeDirectory maps workspace id to employee ids.
type StaticEmployeeDirectory map[string][]string

func (d StaticEmployeeDirectory) ListEmployees(_ context.Context, workspaceID string) ([]string, error) {
	if d == nil {
		return nil, nil
	}
	return append([]string(nil), d[strings.TrimSpace(workspaceID)]...), nil
}

// RoundRobinStrategy cycles through the workspace's employees in listing
// order. Position is tracked per workspace.
type RoundRobinStrategy struct {
	directory EmployeeDirectory

	mu       sync.Mutex
	position map[string]int
}

func NewRoundRobinStrategy(directory EmployeeDirectory) *RoundRobinStrategy {
	return &RoundRobinStrategy{
		directory: directory,
		position:  map[string]int{},
	}
}

func (s *RoundRobinStrategy) Next(ctx context.Context, workspaceID string) (string, error) {
	if s == nil || s.directory == nil {
		return "", escalationInternal("escalation: employee directory is required")
	}
	employees, err := s.directory.ListEmployees(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	if len(employees) == 0 {
		return "", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.position[workspaceID] % len(employees)
	s.position[workspaceID] = index + 1
	return employees[index], nil
}

// LoadReader reports how many open entries an employee currently holds.
type LoadReader interface {
	CountAssigned(ctx context.Context, workspaceID string, employeeID string) (int, error)
}

// LeastLoadedStrategy picks the employee with the fewest open assignments;
// listing order breaks ties.
type LeastLoadedStrategy struct {
	directory EmployeeDirectory
	loads     LoadReader
}

func NewLeastLoadedStrategy(directory EmployeeDirectory, loads LoadReader) *LeastLoadedStrategy {
	return &LeastLoadedStrategy{directory: directory, loads: loads}
}

func (s *LeastLoadedStrategy) Next(ctx context.Context, workspaceID string) (string, error) {
	if s == nil || s.directory == nil || s.loads == nil {
		return "", escalationInternal("escalation: employee directory and load reader are required")
	}
	employees, err := s.directory.ListEmployees(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	if len(employees) == 0 {
		return "", nil
	}

	selected := ""
	best := -1
	for _, employee := range employees {
		load, err := s.loads.CountAssigned(ctx, workspaceID, employee)
		if err != nil {
			return "", err
		}
		if best < 0 || load < best {
			best = load
			selected = employee
		}
	}
	return selected, nil
}

var (
	_ core.AssignmentStrategy = (*RoundRobinStrategy)(nil)
	_ core.AssignmentStrategy = (*LeastLoadedStrategy)(nil)
)
