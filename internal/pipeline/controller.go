// Package pipeline implements the lead research controller: the Run and
// Lead state machines, the prescreen gate, progress aggregation, the
// contact-eligibility gate, and provider email merging. All components
// communicate through the store; the controller reacts to dispatched
// events and emits follow-up events.
package pipeline

import (
	"context"
	"time"

	"github.com/sells-group/leadgen-cli/internal/dispatch"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
	"github.com/sells-group/leadgen-cli/pkg/hunter"
	"github.com/sells-group/leadgen-cli/pkg/scrapingdog"
	"github.com/sells-group/leadgen-cli/pkg/tomba"
)

// Analyzer is the AI collaborator: cheap prescreen classification, full
// grading, and the supplementary deep-research pass.
type Analyzer interface {
	PrescreenLead(ctx context.Context, name, website, businessType string) (*anthropic.PrescreenResult, error)
	GradeLead(ctx context.Context, name, website, content string) (*anthropic.GradeResult, error)
	DeepResearch(ctx context.Context, name, content, priorReport string) (string, error)
}

// Config holds the controller's tunables.
type Config struct {
	// ResumeBatchSize bounds the research-event burst emitted on resume.
	ResumeBatchSize int
	// PrescreenConcurrency limits parallel prescreen classifications.
	PrescreenConcurrency int
	// StaleAfter is how long a lead may sit in scraping/analyzing before
	// the force-restart sweep considers its worker dead.
	StaleAfter time.Duration
	// MaxSearchPages caps maps-search pagination per query.
	MaxSearchPages int
	// CadenceWindow is the minimum wait before re-contacting a domain.
	CadenceWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.ResumeBatchSize <= 0 {
		c.ResumeBatchSize = 100
	}
	if c.PrescreenConcurrency <= 0 {
		c.PrescreenConcurrency = 5
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Minute
	}
	if c.MaxSearchPages <= 0 {
		c.MaxSearchPages = 10
	}
	if c.CadenceWindow <= 0 {
		c.CadenceWindow = 6 * 30 * 24 * time.Hour
	}
	return c
}

// Controller wires the pipeline components around the event dispatcher.
// Each external provider runs behind its own circuit breaker; a provider
// outage trips its breaker without affecting the others.
type Controller struct {
	cfg        Config
	store      store.Store
	dispatcher dispatch.Dispatcher
	scraper    scrapingdog.Client
	analyzer   Analyzer
	hunter     hunter.Client
	tomba      tomba.Client
	breakers   *resilience.ServiceBreakers
}

// New builds a Controller. The hunter and tomba clients are optional;
// email enrichment is skipped for providers that are nil.
func New(cfg Config, st store.Store, d dispatch.Dispatcher, scraper scrapingdog.Client, analyzer Analyzer, h hunter.Client, t tomba.Client) *Controller {
	return &Controller{
		cfg:        cfg.withDefaults(),
		store:      st,
		dispatcher: d,
		scraper:    scraper,
		analyzer:   analyzer,
		hunter:     h,
		tomba:      t,
		breakers:   resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
	}
}

// Register binds the workflow events to their handlers.
func (c *Controller) Register(reg *dispatch.Registry) {
	reg.Register(dispatch.EventRunCreated, c.HandleRunCreated)
	reg.Register(dispatch.EventPrescreenTriggered, c.HandlePrescreen)
	reg.Register(dispatch.EventResearchTriggered, c.HandleResearch)
	reg.Register(dispatch.EventResearchAllTriggered, c.HandleResearchAll)
	reg.Register(dispatch.EventDeepResearch, c.HandleDeepResearch)
	reg.Register(dispatch.EventDeepResearchMultiple, c.HandleDeepResearchMultiple)
}
