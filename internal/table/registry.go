package table

import (
	"context"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/tableserver/internal/game"
	"github.com/lox/tableserver/internal/tableid"
)

// Registry owns every table session. Tables created from configuration
// persist for the life of the server; tables created on demand retire when
// their last player cashes out.
type Registry struct {
	ledger Ledger
	sink   Sink
	clock  quartz.Clock
	logger *log.Logger
	cfg    Config

	mu       sync.RWMutex
	sessions map[string]*Session

	group *errgroup.Group
	ctx   context.Context
}

// NewRegistry creates an empty registry. Start must be called before
// tables are created.
func NewRegistry(cfg Config, ledger Ledger, sink Sink, clock quartz.Clock, logger *log.Logger) *Registry {
	return &Registry{
		ledger:   ledger,
		sink:     sink,
		clock:    clock,
		logger:   logger.WithPrefix("registry"),
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Start binds the registry to its lifecycle context. Cancelling the
// context drains and stops every session; Wait returns when all have
// stopped.
func (r *Registry) Start(ctx context.Context) {
	r.group, r.ctx = errgroup.WithContext(ctx)
}

// Wait blocks until every session goroutine has finished.
func (r *Registry) Wait() error {
	return r.group.Wait()
}

// Create registers a new table and starts its actor. Persistent tables
// come from configuration and survive emptying out.
func (r *Registry) Create(cfg game.TableConfig, persistent bool) *Session {
	id := tableid.New()
	session := NewSession(id, cfg, r.cfg, r.ledger, r.sink, r.clock, r.logger)
	session.persistent = persistent
	session.onEmpty = r.retire

	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()

	r.group.Go(func() error {
		return session.Run(r.ctx)
	})
	r.logger.Info("table created", "table", id, "name", cfg.Name, "persistent", persistent)
	return session
}

// CreateOnDemand registers a table with the on-demand configuration. It is
// how a seat claim without a table id gets a table: created on first join,
// retired when the last player leaves.
func (r *Registry) CreateOnDemand() *Session {
	return r.Create(r.cfg.OnDemand, false)
}

// retire is called from a session's own goroutine when an on-demand table
// empties; the session keeps running until the registry context ends, it
// is just no longer listed or joinable.
func (r *Registry) retire(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	r.logger.Info("table retired", "table", id)
}

// Get looks up a table by ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	return session, ok
}

// FindUser returns the session where the user holds a seat, if any. Used
// to reattach reconnecting users to their table.
func (r *Registry) FindUser(ctx context.Context, userID string) (*Session, bool) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		if seated, err := s.HasUser(ctx, userID); err == nil && seated {
			return s, true
		}
	}
	return nil, false
}

// List returns a summary row per registered table.
func (r *Registry) List(ctx context.Context) ([]Summary, error) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	// Table IDs are time-ordered, so this lists tables by creation.
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].id < sessions[j].id })

	summaries := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		summary, err := s.Summarize(ctx)
		if err != nil {
			// A halted or closed table is simply not listed.
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
