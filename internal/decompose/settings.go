package decompose

import (
	"sync"

	"github.com/ShayCichocki/plana/internal/config"
)

// options is the per-node view of the settings that steer expansion.
type options struct {
	maxDepth       int
	asList         bool
	parallel       bool
	candidateCount int
	temperature    float64
	maxTokens      int
	subtaskCount   string
	useCache       bool
	useExamples    bool
	useGrounding   bool
	groundingWords int
	groundingDocs  int
	showPrompts    bool
	showResults    bool
	showGrounding  bool
}

// LiveConfig is configuration that may change while an expansion runs,
// for example from the human chooser's settings menu.
type LiveConfig struct {
	mu  sync.RWMutex
	cfg config.Config
}

// NewLiveConfig copies cfg.
func NewLiveConfig(cfg *config.Config) *LiveConfig {
	return &LiveConfig{cfg: *cfg}
}

// Snapshot returns a copy of the current configuration.
func (l *LiveConfig) Snapshot() config.Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Apply changes one setting. See config.Config.Apply.
func (l *LiveConfig) Apply(key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg.Apply(key, value)
}

func (l *LiveConfig) options() options {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, d := l.cfg.Expand, l.cfg.Display
	return options{
		maxDepth:       e.MaxDepth,
		asList:         e.Mode == config.ModeAsAList,
		parallel:       e.MaxConcurrentRequests > 1,
		candidateCount: e.CandidateCount,
		temperature:    e.Temperature,
		maxTokens:      e.MaxTokens,
		subtaskCount:   e.SubtaskCount,
		useCache:       e.UseCache,
		useExamples:    e.UseExamples,
		useGrounding:   e.UseGrounding,
		groundingWords: e.GroundingMaxWords,
		groundingDocs:  e.GroundingMaxResults,
		showPrompts:    d.ShowPrompts,
		showResults:    d.ShowResults,
		showGrounding:  d.ShowGrounding,
	}
}
