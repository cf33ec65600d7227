package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
	"github.com/ekaya-inc/ekaya-gateway/pkg/metrics"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

// MaxPrefixLength bounds the table-name prefix accepted by Summarize.
const MaxPrefixLength = 50

// SchemaService reads normalised catalog metadata from a backend.
type SchemaService interface {
	// Discover lists every column of every user table.
	Discover(ctx context.Context, backend models.Backend) ([]models.SchemaColumn, error)

	// Summarize lists tables whose name starts with prefix (case-insensitive;
	// empty matches all), their foreign keys, and best-effort row counts.
	Summarize(ctx context.Context, backend models.Backend, prefix string) (*models.SchemaSummary, error)
}

// SchemaServiceConfig holds catalog timeouts.
type SchemaServiceConfig struct {
	// CatalogTimeout bounds each catalog query.
	CatalogTimeout time.Duration
	// CountTimeout bounds each per-table row count.
	CountTimeout time.Duration
}

type schemaService struct {
	connections ConnectionProvider
	dialects    DialectLookup
	cfg         SchemaServiceConfig
	metrics     *metrics.Recorder
	logger      *zap.Logger
}

// NewSchemaService creates a schema service.
func NewSchemaService(
	connections ConnectionProvider,
	dialects DialectLookup,
	cfg SchemaServiceConfig,
	rec *metrics.Recorder,
	logger *zap.Logger,
) SchemaService {
	if cfg.CatalogTimeout <= 0 {
		cfg.CatalogTimeout = DefaultStatementTimeout
	}
	if cfg.CountTimeout <= 0 {
		cfg.CountTimeout = DefaultCountTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &schemaService{
		connections: connections,
		dialects:    dialects,
		cfg:         cfg,
		metrics:     rec,
		logger:      logger.Named("schema"),
	}
}

func (s *schemaService) Discover(ctx context.Context, backend models.Backend) ([]models.SchemaColumn, error) {
	dialect, err := s.dialects.Get(backend)
	if err != nil {
		return nil, err
	}

	lease, err := s.connections.Acquire(ctx, backend)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	columns, err := catalogCall(ctx, s, lease, dialect, dialect.DiscoverColumns)
	if err != nil {
		return nil, err
	}

	s.logger.Info("schema discovered",
		zap.String("backend", backend.String()),
		zap.Int("columns", len(columns)),
	)
	return columns, nil
}

func (s *schemaService) Summarize(ctx context.Context, backend models.Backend, prefix string) (*models.SchemaSummary, error) {
	if len(prefix) > MaxPrefixLength {
		return nil, apperrors.New(apperrors.KindValidation, "prefix must be at most 50 characters")
	}

	dialect, err := s.dialects.Get(backend)
	if err != nil {
		return nil, err
	}

	lease, err := s.connections.Acquire(ctx, backend)
	if err != nil {
		return nil, err
	}
	defer func() {
		if lease != nil {
			lease.Release()
		}
	}()

	tables, err := catalogCall(ctx, s, lease, dialect, dialect.DiscoverTables)
	if err != nil {
		return nil, err
	}
	rels, err := catalogCall(ctx, s, lease, dialect, dialect.DiscoverRelationships)
	if err != nil {
		return nil, err
	}

	lowerPrefix := strings.ToLower(prefix)
	summary := &models.SchemaSummary{
		Tables:        make([]string, 0, len(tables)),
		Relationships: make([]models.SchemaRelationship, 0),
		TableCounts:   make(map[string]*int64),
	}
	var selected []datasource.TableRef
	included := make(map[string]bool)
	for _, t := range tables {
		if !strings.HasPrefix(strings.ToLower(t.Name), lowerPrefix) {
			continue
		}
		name := dialect.DisplayName(t)
		selected = append(selected, t)
		summary.Tables = append(summary.Tables, name)
		included[name] = true
	}
	for _, r := range rels {
		if included[r.SourceTable] {
			summary.Relationships = append(summary.Relationships, r)
		}
	}

	for _, t := range selected {
		name := dialect.DisplayName(t)
		if lease == nil || lease.Done() {
			// The previous probe timed out and took its connection with it.
			lease, err = s.connections.Acquire(ctx, backend)
			if err != nil {
				summary.TableCounts[name] = nil
				continue
			}
		}
		summary.TableCounts[name] = s.countTable(ctx, backend, lease, dialect, t)
	}

	s.logger.Info("schema summarized",
		zap.String("backend", backend.String()),
		zap.Int("tables", len(summary.Tables)),
		zap.Int("relationships", len(summary.Relationships)),
		zap.Bool("filtered", prefix != ""),
	)
	return summary, nil
}

// countTable returns nil when the probe fails or exceeds the count timeout.
func (s *schemaService) countTable(ctx context.Context, backend models.Backend, lease *datasource.Lease, dialect datasource.Dialect, table datasource.TableRef) *int64 {
	countCtx, cancel := context.WithTimeout(ctx, s.cfg.CountTimeout)
	defer cancel()

	n, err := datasource.QueryScalarInt64(countCtx, lease.Conn(), dialect.TableCountPlan(table))
	if err != nil {
		outcome := metrics.OutcomeError
		if countCtx.Err() != nil {
			outcome = metrics.OutcomeTimeout
			lease.Discard()
		}
		s.metrics.ObserveCountProbe(backend.String(), outcome)
		s.logger.Warn("table count unavailable",
			zap.String("backend", backend.String()),
			zap.String("table", dialect.DisplayName(table)),
			zap.String("outcome", outcome),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil
	}

	s.metrics.ObserveCountProbe(backend.String(), metrics.OutcomeSuccess)
	return &n
}

// catalogCall runs one introspection query under the catalog timeout and
// classifies its failure. A timed-out connection is discarded.
func catalogCall[T any](
	ctx context.Context,
	s *schemaService,
	lease *datasource.Lease,
	dialect datasource.Dialect,
	fn func(context.Context, datasource.Conn) (T, error),
) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CatalogTimeout)
	defer cancel()

	out, err := fn(callCtx, lease.Conn())
	if err == nil {
		return out, nil
	}

	classified := classifyExecutionError(dialect, err)
	if apperrors.IsKind(classified, apperrors.KindQueryTimeout) || callCtx.Err() != nil {
		lease.Discard()
	}
	s.logger.Error("catalog query failed",
		zap.String("backend", dialect.Backend().String()),
		zap.String("kind", string(classified.Kind)),
		zap.String("error", logging.SanitizeError(err)),
	)
	var zero T
	return zero, classified
}
