package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/aof/pkg/events"
	"github.com/cuemby/aof/pkg/types"
)

// TasksDir is the task tree's directory relative to the data root.
const TasksDir = "tasks"

// RecordFile is the record's name inside a directory-form task.
const RecordFile = "task.md"

// Side-channel folders inside a directory-form task.
const (
	InputsDir   = "inputs"
	WorkDir     = "work"
	OutputsDir  = "outputs"
	SubtasksDir = "subtasks"
)

// Store persists tasks under <root>/tasks/<status>/<task-id>/ and guarantees
// that every mutation is an atomic write-temp-and-rename. Status is encoded
// in the path: a transition renames the task directory between buckets.
//
// The engine creates tasks in directory form (record plus side-channel
// folders); plain <task-id>.md files are also read and transitioned, so
// hand-authored records work.
type Store struct {
	root   string
	logger *events.Logger

	mu sync.Mutex
}

// New creates a store over the given data root. The event logger may be nil
// in tests that do not assert on events.
func New(root string, logger *events.Logger) *Store {
	return &Store{root: root, logger: logger}
}

// Root returns the data root the store operates on.
func (s *Store) Root() string { return s.root }

func (s *Store) bucketDir(status types.Status) string {
	return filepath.Join(s.root, TasksDir, string(status))
}

func (s *Store) emit(evType types.EventType, actor, taskID string, payload map[string]any) {
	if s.logger != nil {
		s.logger.Emit(evType, actor, taskID, payload)
	}
}

// CreateInput carries the caller-supplied fields for a new task.
type CreateInput struct {
	Title     string
	Body      string
	Priority  types.Priority
	Routing   *types.Routing
	DependsOn []string
	Metadata  types.Metadata
	CreatedBy string

	// Ready creates the task directly in the ready bucket instead of
	// backlog.
	Ready bool
}

// Create assigns a dated sequential id, writes the record into backlog (or
// ready when requested), and emits task.created.
func (s *Store) Create(in CreateInput) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	id, err := s.nextID(now)
	if err != nil {
		return nil, err
	}

	status := types.StatusBacklog
	if in.Ready {
		status = types.StatusReady
	}
	priority := in.Priority
	if priority == "" {
		priority = types.PriorityNormal
	}

	t := &types.Task{
		ID:               id,
		Title:            in.Title,
		Status:           status,
		Priority:         priority,
		Routing:          in.Routing,
		DependsOn:        in.DependsOn,
		Metadata:         in.Metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastTransitionAt: now,
		CreatedBy:        in.CreatedBy,
		Body:             in.Body,
	}

	dir := filepath.Join(s.bucketDir(status), id)
	for _, sub := range []string{InputsDir, WorkDir, OutputsDir, SubtasksDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create task workspace: %w", err)
		}
	}
	if err := s.writeRecord(filepath.Join(dir, RecordFile), t); err != nil {
		return nil, err
	}

	s.emit(types.EventTaskCreated, orActor(in.CreatedBy), id, map[string]any{
		"title":  in.Title,
		"status": string(status),
	})
	return t, nil
}

func orActor(createdBy string) string {
	if createdBy == "" {
		return "engine"
	}
	return createdBy
}

// nextID allocates TASK-<yyyy>-<mm>-<dd>-<nnn>: today's date plus the next
// free sequence number across every status bucket.
func (s *Store) nextID(now time.Time) (string, error) {
	prefix := "TASK-" + now.Format("2006-01-02") + "-"
	max := 0
	for _, status := range types.AllStatuses() {
		entries, err := os.ReadDir(s.bucketDir(status))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("failed to scan %s bucket: %w", status, err)
		}
		for _, e := range entries {
			name := strings.TrimSuffix(e.Name(), ".md")
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			var n int
			if _, err := fmt.Sscanf(name[len(prefix):], "%d", &n); err == nil && n > max {
				max = n
			}
		}
	}
	return fmt.Sprintf("%s%03d", prefix, max+1), nil
}

// locate finds a task id in any bucket, returning its record path, base path
// (directory or file), and status. Returns ErrTaskNotFound when absent.
func (s *Store) locate(id string) (recordPath, basePath string, status types.Status, err error) {
	for _, st := range types.AllStatuses() {
		dir := filepath.Join(s.bucketDir(st), id)
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			return filepath.Join(dir, RecordFile), dir, st, nil
		}
		file := dir + ".md"
		if fi, err := os.Stat(file); err == nil && !fi.IsDir() {
			return file, file, st, nil
		}
	}
	return "", "", "", NotFoundError(id)
}

// Get reads one task. The status encoded in the path is authoritative.
func (s *Store) Get(id string) (*types.Task, error) {
	recordPath, _, status, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	return s.readRecord(recordPath, status)
}

func (s *Store) readRecord(path string, status types.Status) (*types.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", path, err)
	}
	t, err := UnmarshalRecord(data)
	if err != nil {
		return nil, err
	}
	t.Status = status
	return t, nil
}

// List returns every parseable task across all buckets, sorted by id.
// Unparseable records are skipped here; Lint reports them.
func (s *Store) List() ([]*types.Task, error) {
	var out []*types.Task
	for _, status := range types.AllStatuses() {
		entries, err := os.ReadDir(s.bucketDir(status))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to scan %s bucket: %w", status, err)
		}
		for _, e := range entries {
			recordPath := filepath.Join(s.bucketDir(status), e.Name())
			if e.IsDir() {
				recordPath = filepath.Join(recordPath, RecordFile)
			} else if !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			t, err := s.readRecord(recordPath, status)
			if err != nil {
				continue
			}
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListByStatus returns the parseable tasks in one bucket, sorted by id.
func (s *Store) ListByStatus(status types.Status) ([]*types.Task, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []*types.Task
	for _, t := range all {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

// CountByStatus tallies tasks per bucket.
func (s *Store) CountByStatus() (map[types.Status]int, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	counts := make(map[types.Status]int, len(types.AllStatuses()))
	for _, t := range all {
		counts[t.Status]++
	}
	return counts, nil
}

// TransitionOpts carries optional context persisted with a transition.
type TransitionOpts struct {
	Reason   string
	Blockers []string
	Actor    string

	// Mutate, when set, edits the task between validation and the write, so
	// lease changes land in the same atomic update as the move.
	Mutate func(*types.Task)
}

// Transition validates the edge, rewrites the record with the new status,
// and renames it into the target bucket. Emits task.transitioned.
func (s *Store) Transition(id string, target types.Status, opts *TransitionOpts) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(id, target, opts)
}

func (s *Store) transitionLocked(id string, target types.Status, opts *TransitionOpts) (*types.Task, error) {
	recordPath, basePath, from, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	if !target.Valid() {
		return nil, ValidationError(id, fmt.Sprintf("unknown status %q", target))
	}
	if !types.CanTransition(from, target) {
		return nil, InvalidTransitionError(id, from, target)
	}

	t, err := s.readRecord(recordPath, from)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t.Status = target
	t.UpdatedAt = now
	t.LastTransitionAt = now
	if opts != nil {
		if opts.Reason != "" {
			t.SetMeta(types.MetaBlockReason, opts.Reason)
		}
		if len(opts.Blockers) > 0 {
			t.SetMeta("blockers", opts.Blockers)
		}
		if opts.Mutate != nil {
			opts.Mutate(t)
		}
	}

	// Rewrite in place first, then rename into the target bucket. Both
	// steps are single renames; a crash between them leaves one record
	// whose path status wins on the next read.
	if err := s.writeRecord(recordPath, t); err != nil {
		return nil, err
	}
	targetBase := filepath.Join(s.bucketDir(target), id)
	if !strings.HasSuffix(basePath, string(os.PathSeparator)+id) {
		targetBase += ".md"
	}
	if err := os.MkdirAll(s.bucketDir(target), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s bucket: %w", target, err)
	}
	if err := os.Rename(basePath, targetBase); err != nil {
		return nil, fmt.Errorf("failed to move %s to %s: %w", id, target, err)
	}

	actor := "engine"
	if opts != nil && opts.Actor != "" {
		actor = opts.Actor
	}
	payload := map[string]any{"from": string(from), "to": string(target)}
	if opts != nil && opts.Reason != "" {
		payload["reason"] = opts.Reason
	}
	s.emit(types.EventTaskTransitioned, actor, id, payload)
	return t, nil
}

// Update applies a mutator to the task and writes the record atomically in
// place. The mutator must not change the status; use Transition for that.
func (s *Store) Update(id string, mutate func(*types.Task) error) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recordPath, _, status, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	t, err := s.readRecord(recordPath, status)
	if err != nil {
		return nil, err
	}
	if err := mutate(t); err != nil {
		return nil, err
	}
	if t.Status != status {
		return nil, InvalidTransitionError(id, status, t.Status)
	}
	t.UpdatedAt = time.Now().UTC()
	if err := s.writeRecord(recordPath, t); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateBody replaces the record's free-form body.
func (s *Store) UpdateBody(id, body string) (*types.Task, error) {
	return s.Update(id, func(t *types.Task) error {
		t.Body = body
		return nil
	})
}

// AppendBody appends a section to the record's body.
func (s *Store) AppendBody(id, section string) (*types.Task, error) {
	return s.Update(id, func(t *types.Task) error {
		if t.Body != "" && !strings.HasSuffix(t.Body, "\n") {
			t.Body += "\n"
		}
		t.Body += section
		return nil
	})
}

// Touch bumps the task's UpdatedAt.
func (s *Store) Touch(id string) (*types.Task, error) {
	return s.Update(id, func(*types.Task) error { return nil })
}

// ComputeReadyTasks returns the backlog tasks whose dependencies are all
// done, in id order.
func (s *Store) ComputeReadyTasks() ([]*types.Task, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool)
	for _, t := range all {
		if t.Status == types.StatusDone {
			done[t.ID] = true
		}
	}

	var ready []*types.Task
	for _, t := range all {
		if t.Status != types.StatusBacklog {
			continue
		}
		eligible := true
		for _, dep := range t.DependsOn {
			if !done[dep] {
				eligible = false
				break
			}
		}
		if eligible {
			ready = append(ready, t)
		}
	}
	return ready, nil
}

// Dependents returns the tasks that list id in dependsOn.
func (s *Store) Dependents(id string) ([]*types.Task, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []*types.Task
	for _, t := range all {
		for _, dep := range t.DependsOn {
			if dep == id {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

// AddDependency records that id depends on dep. The new edge is rejected if
// it would close a cycle or if either task is missing.
func (s *Store) AddDependency(id, dep string) (*types.Task, error) {
	if id == dep {
		return nil, ValidationError(id, "task cannot depend on itself")
	}
	if _, err := s.Get(dep); err != nil {
		return nil, err
	}
	if reachable, err := s.dependsOnReaches(dep, id); err != nil {
		return nil, err
	} else if reachable {
		return nil, ValidationError(id, fmt.Sprintf("dependency on %s would create a cycle", dep))
	}
	return s.Update(id, func(t *types.Task) error {
		for _, existing := range t.DependsOn {
			if existing == dep {
				return nil
			}
		}
		t.DependsOn = append(t.DependsOn, dep)
		return nil
	})
}

// RemoveDependency removes dep from id's dependsOn list.
func (s *Store) RemoveDependency(id, dep string) (*types.Task, error) {
	return s.Update(id, func(t *types.Task) error {
		out := t.DependsOn[:0]
		for _, existing := range t.DependsOn {
			if existing != dep {
				out = append(out, existing)
			}
		}
		t.DependsOn = out
		return nil
	})
}

// dependsOnReaches reports whether target is reachable from start by walking
// dependsOn edges.
func (s *Store) dependsOnReaches(start, target string) (bool, error) {
	all, err := s.List()
	if err != nil {
		return false, err
	}
	deps := make(map[string][]string, len(all))
	for _, t := range all {
		deps[t.ID] = t.DependsOn
	}

	seen := map[string]bool{}
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true, nil
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, deps[cur]...)
	}
	return false, nil
}

// writeRecord serializes and atomically writes one record.
func (s *Store) writeRecord(path string, t *types.Task) error {
	data, err := MarshalRecord(t)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".task-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp record: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace record %s: %w", path, err)
	}
	return nil
}
