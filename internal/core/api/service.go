// Package api provides the evaluation service shared by the gRPC and HTTP
// transports.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/solatis/healthsignals/internal/core/config"
	"github.com/solatis/healthsignals/internal/core/db"
	"github.com/solatis/healthsignals/internal/core/metrics"
	"github.com/solatis/healthsignals/internal/rules"
	"github.com/solatis/healthsignals/internal/ruletable"
	"github.com/solatis/healthsignals/internal/types"
)

// AuditStore persists evaluation records. *db.AuditStore satisfies it.
type AuditStore interface {
	Record(ctx context.Context, rec db.EvaluationRecord) error
	Get(ctx context.Context, id types.EvaluationID) (*db.EvaluationRecord, error)
}

// EvaluationService implements rule evaluation for both transports.
// Thin orchestration layer delegating to ruletable, rules, and db packages.
type EvaluationService struct {
	engine  *rules.Engine
	cfg     *config.ServiceConfig
	source  ruletable.Source
	audit   AuditStore
	metrics *metrics.Metrics
	logger  *slog.Logger

	jsonlMutexes map[string]*sync.Mutex
	mutexLock    sync.Mutex
}

// Option configures an EvaluationService.
type Option func(*EvaluationService)

// WithAuditStore enables the evaluation audit log.
func WithAuditStore(store AuditStore) Option {
	return func(s *EvaluationService) { s.audit = store }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *EvaluationService) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *EvaluationService) { s.logger = logger }
}

// WithRuleSource overrides the rule source derived from cfg.RulesPath.
func WithRuleSource(src ruletable.Source) Option {
	return func(s *EvaluationService) { s.source = src }
}

// NewEvaluationService creates service instance with dependencies.
// Auto-creates the evaluations directory if not exists.
func NewEvaluationService(engine *rules.Engine, cfg *config.ServiceConfig, opts ...Option) (*EvaluationService, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}

	s := &EvaluationService{
		engine:       engine,
		cfg:          cfg,
		jsonlMutexes: make(map[string]*sync.Mutex),
	}
	if cfg.RulesPath != "" {
		s.source = ruletable.NewFileSource(cfg.RulesPath)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	if cfg.DataDir != "" {
		if err := os.MkdirAll(filepath.Join(cfg.DataDir, "evaluations"), 0755); err != nil {
			return nil, fmt.Errorf("failed to create evaluations directory: %w", err)
		}
	}

	return s, nil
}

// Lookup returns an audited evaluation.
// Returns types.ErrEvaluationNotFound when the audit log is disabled.
func (s *EvaluationService) Lookup(ctx context.Context, id types.EvaluationID) (*db.EvaluationRecord, error) {
	if s.audit == nil {
		return nil, fmt.Errorf("%w: audit log disabled", types.ErrEvaluationNotFound)
	}
	return s.audit.Get(ctx, id)
}

// Metrics returns the service's collectors, nil when instrumentation is off.
func (s *EvaluationService) Metrics() *metrics.Metrics {
	return s.metrics
}

// getJSONLMutex returns mutex for given filename, creating if not exists.
// Per-file mutex protects concurrent writes to same daily JSONL file.
// Mutex map grows by ~1 entry/day.
func (s *EvaluationService) getJSONLMutex(filename string) *sync.Mutex {
	s.mutexLock.Lock()
	defer s.mutexLock.Unlock()

	if _, ok := s.jsonlMutexes[filename]; !ok {
		s.jsonlMutexes[filename] = &sync.Mutex{}
	}
	return s.jsonlMutexes[filename]
}
