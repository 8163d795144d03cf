// Package memory is an in-process implementation of the Hiretrack
// repositories. It mirrors the SurrealDB repositories' contracts (nil, nil
// for missing records, database sentinels for failures) and is selected with
// DB_DRIVER=memory. Data does not survive a restart.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgo/hiretrack/api/internal/model"
)

// FaultHook is called between the staged writes of a multi-row operation.
// Returning an error aborts the operation before anything is applied.
type FaultHook func(step string) error

// Fault steps passed to a FaultHook
const (
	StepApplicationStaged = "application_staged"
)

// Store holds every table behind one lock
type Store struct {
	mu sync.RWMutex

	users        map[string]*model.User
	usersByEmail map[string]string
	jobs         map[string]*model.Job
	apps         map[string]*model.Application
	appsByPair   map[string]string
	history      map[string][]*model.HistoryEntry

	hook FaultHook
	now  func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		users:        make(map[string]*model.User),
		usersByEmail: make(map[string]string),
		jobs:         make(map[string]*model.Job),
		apps:         make(map[string]*model.Application),
		appsByPair:   make(map[string]string),
		history:      make(map[string][]*model.HistoryEntry),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetFaultHook installs a hook used by tests to fail mid-operation
func (s *Store) SetFaultHook(hook FaultHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// Users returns the user repository view
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Jobs returns the job repository view
func (s *Store) Jobs() *JobRepository { return &JobRepository{s: s} }

// Applications returns the application repository view
func (s *Store) Applications() *ApplicationRepository { return &ApplicationRepository{s: s} }

// History returns the audit log view
func (s *Store) History() *HistoryRepository { return &HistoryRepository{s: s} }

func newID(table string) string {
	return table + ":" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func pairKey(candidateID, jobID string) string {
	return candidateID + "|" + jobID
}

// fault runs the hook; caller holds s.mu
func (s *Store) fault(step string) error {
	if s.hook == nil {
		return nil
	}
	return s.hook(step)
}

func copyUser(u *model.User) *model.User {
	c := *u
	return &c
}

func copyJob(j *model.Job) *model.Job {
	c := *j
	return &c
}

func copyApp(a *model.Application) *model.Application {
	c := *a
	return &c
}

func copyEntry(e *model.HistoryEntry) *model.HistoryEntry {
	c := *e
	if e.OldStage != nil {
		old := *e.OldStage
		c.OldStage = &old
	}
	return &c
}

func sortApps(apps []*model.Application, newestFirst bool) {
	sort.SliceStable(apps, func(i, j int) bool {
		if newestFirst {
			return apps[i].CreatedOn.After(apps[j].CreatedOn)
		}
		return apps[i].CreatedOn.Before(apps[j].CreatedOn)
	})
}
