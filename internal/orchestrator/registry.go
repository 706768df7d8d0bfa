package orchestrator

import (
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// Registry holds one orchestrator per bot identity. Re-creating an
// orchestrator for a known bot replaces its credentials and nothing
// else; jobs already running against the old credentials finish
// undisturbed.
type Registry struct {
	mu            sync.Mutex
	orchestrators map[string]*Orchestrator

	windowHours  []int
	newSource    SourceFactory
	newInference InferenceFactory
	events       interfaces.EventService
	logger       arbor.ILogger
}

// NewRegistry creates the per-bot orchestrator registry.
func NewRegistry(windowHours []int, newSource SourceFactory, newInference InferenceFactory, events interfaces.EventService, logger arbor.ILogger) *Registry {
	return &Registry{
		orchestrators: make(map[string]*Orchestrator),
		windowHours:   windowHours,
		newSource:     newSource,
		newInference:  newInference,
		events:        events,
		logger:        logger,
	}
}

// GetOrCreate returns the orchestrator for the credential's bot,
// creating it on first use. On a repeat call the stored credentials are
// replaced with the new ones.
func (r *Registry) GetOrCreate(creds models.StoreCredentials) *Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o, ok := r.orchestrators[creds.BotID]; ok {
		o.UpdateCredentials(creds)
		return o
	}

	o := newOrchestrator(creds, r.windowHours, r.newSource, r.newInference, r.events, r.logger)
	r.orchestrators[creds.BotID] = o

	r.logger.Debug().Str("bot_id", creds.BotID).Msg("Orchestrator created")
	return o
}

// Reset drops all orchestrators. Running jobs keep their own references
// and finish normally.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orchestrators = make(map[string]*Orchestrator)
}

// Count returns the number of known bot identities.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orchestrators)
}
