package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/audit"
	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
	"github.com/ekaya-inc/ekaya-gateway/pkg/metrics"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-gateway/pkg/sql"
)

const (
	DefaultMaxPageSize      = 50
	DefaultStatementTimeout = 30 * time.Second
	DefaultCountTimeout     = 5 * time.Second
)

// ConnectionProvider hands out connection leases. Implemented by
// datasource.ConnectionManager.
type ConnectionProvider interface {
	Acquire(ctx context.Context, backend models.Backend) (*datasource.Lease, error)
	Ping(ctx context.Context, backend models.Backend) error
	Configured(backend models.Backend) bool
}

// DialectLookup resolves the dialect for a backend. Implemented by
// datasource.Registry.
type DialectLookup interface {
	Get(backend models.Backend) (datasource.Dialect, error)
}

// QueryService runs caller SQL through the validation, parameterization,
// execution and pagination pipeline.
type QueryService interface {
	Execute(ctx context.Context, req *models.QueryRequest) (*QueryResult, error)
}

// QueryResult is one executed page.
type QueryResult struct {
	RequestID string
	Backend   models.Backend
	Page      *models.Page
}

// QueryServiceConfig holds paging and timeout limits.
type QueryServiceConfig struct {
	MaxPageSize      int
	DefaultPageSize  int
	StatementTimeout time.Duration
	CountTimeout     time.Duration
	ExactCounts      bool
}

// PipelineState is one step of a query request. Steps advance strictly in
// order; StateFailed is reachable from every step.
type PipelineState string

const (
	StateReceived      PipelineState = "received"
	StateValidated     PipelineState = "validated"
	StateParameterized PipelineState = "parameterized"
	StateLeaseAcquired PipelineState = "lease_acquired"
	StateExecuted      PipelineState = "executed"
	StatePaginated     PipelineState = "paginated"
	StateDone          PipelineState = "done"
	StateFailed        PipelineState = "failed"
)

type queryService struct {
	connections ConnectionProvider
	dialects    DialectLookup
	cfg         QueryServiceConfig
	metrics     *metrics.Recorder
	auditor     *audit.SecurityAuditor
	logger      *zap.Logger
}

// NewQueryService creates a query service. Zero limits take package defaults.
func NewQueryService(
	connections ConnectionProvider,
	dialects DialectLookup,
	cfg QueryServiceConfig,
	rec *metrics.Recorder,
	logger *zap.Logger,
) QueryService {
	if cfg.MaxPageSize < 1 {
		cfg.MaxPageSize = DefaultMaxPageSize
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = DefaultStatementTimeout
	}
	if cfg.CountTimeout <= 0 {
		cfg.CountTimeout = DefaultCountTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &queryService{
		connections: connections,
		dialects:    dialects,
		cfg:         cfg,
		metrics:     rec,
		auditor:     audit.NewSecurityAuditor(logger),
		logger:      logger.Named("query"),
	}
}

// queryRun carries the state of one request through the pipeline.
type queryRun struct {
	id      string
	backend models.Backend
	state   PipelineState
	lease   *datasource.Lease
	logger  *zap.Logger
	started time.Time
}

func (r *queryRun) advance(next PipelineState) {
	r.state = next
	r.logger.Debug("pipeline advanced", zap.String("state", string(next)))
}

// Execute runs req and returns one page of results. Any lease acquired is
// ended exactly once before Execute returns, on every path.
func (s *queryService) Execute(ctx context.Context, req *models.QueryRequest) (*QueryResult, error) {
	id := req.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	run := &queryRun{
		id:      id,
		backend: req.Backend,
		state:   StateReceived,
		started: time.Now(),
	}
	run.logger = s.logger.With(
		zap.String("request_id", run.id),
		zap.String("backend", req.Backend.String()),
	)

	defer func() {
		if run.lease != nil {
			run.lease.Release()
		}
	}()

	page, err := s.run(ctx, run, req)
	if err != nil {
		return nil, s.fail(run, req, err)
	}

	run.advance(StateDone)
	s.metrics.ObserveQuery(req.Backend.String(), metrics.OutcomeSuccess, time.Since(run.started))
	run.logger.Info("query executed",
		zap.Int("rows", len(page.Data)),
		zap.Int("page", page.Pagination.Page),
		zap.Duration("execution_time", page.ExecutionTime),
	)

	return &QueryResult{RequestID: run.id, Backend: req.Backend, Page: page}, nil
}

func (s *queryService) run(ctx context.Context, run *queryRun, req *models.QueryRequest) (*models.Page, error) {
	dialect, err := s.dialects.Get(req.Backend)
	if err != nil {
		return nil, err
	}

	normalized, err := sqlutil.Validate(req.Text)
	if err != nil {
		return nil, err
	}
	run.advance(StateValidated)

	pq, err := s.parameterize(normalized, req)
	if err != nil {
		return nil, err
	}
	plan, err := dialect.Render(pq)
	if err != nil {
		return nil, err
	}
	run.advance(StateParameterized)

	page, pageSize := ClampPage(req.Page, req.PageSize, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)
	offset := Offset(page, pageSize)

	lease, err := s.connections.Acquire(ctx, req.Backend)
	if err != nil {
		return nil, err
	}
	run.lease = lease
	run.advance(StateLeaseAcquired)

	// One row past the window tells us whether a next page exists without a count.
	execStart := time.Now()
	rs, err := s.executeWithTimeout(ctx, run, dialect, dialect.PagePlan(plan, pageSize+1, offset))
	if err != nil {
		return nil, err
	}
	run.advance(StateExecuted)

	hasMore := len(rs.Rows) > pageSize
	if hasMore {
		rs.Rows = rs.Rows[:pageSize]
	}

	total := s.totalRecords(ctx, run, dialect, plan, page, offset, len(rs.Rows), hasMore)
	rs.TotalRows = total
	rs.ExecutionTime = time.Since(execStart)

	pagination := BuildPagination(page, pageSize, total, hasMore)
	run.advance(StatePaginated)

	return &models.Page{
		Data:          rs.Rows,
		Pagination:    pagination,
		ColumnTypes:   rs.ColumnTypes,
		ExecutionTime: rs.ExecutionTime,
	}, nil
}

// parameterize lifts literals from raw SQL, or checks caller placeholders
// against the supplied values for parameterized requests.
func (s *queryService) parameterize(text string, req *models.QueryRequest) (models.ParameterizedQuery, error) {
	if !req.Parameterized {
		return sqlutil.ExtractLiterals(text)
	}

	pq, err := sqlutil.ParseParameterized(text, req.Style, req.NamedParams, req.Positional)
	if err != nil {
		return models.ParameterizedQuery{}, err
	}
	if err := sqlutil.RejectInjectedParameters(pq); err != nil {
		return models.ParameterizedQuery{}, err
	}
	return pq, nil
}

// executeWithTimeout runs plan under the statement timeout. A timed-out
// connection is discarded because its in-flight state is unknown.
func (s *queryService) executeWithTimeout(ctx context.Context, run *queryRun, dialect datasource.Dialect, plan models.ExecutionPlan) (*models.ResultSet, error) {
	execCtx, cancel := context.WithTimeout(ctx, s.cfg.StatementTimeout)
	defer cancel()

	rs, err := dialect.Execute(execCtx, run.lease.Conn(), plan)
	if err == nil {
		return rs, nil
	}

	classified := classifyExecutionError(dialect, err)
	if apperrors.IsKind(classified, apperrors.KindQueryTimeout) || execCtx.Err() != nil {
		run.lease.Discard()
	}
	return nil, classified
}

// totalRecords returns the exact row count, or nil when it is unknown.
// A short final page already gives the count; otherwise a COUNT probe runs
// on the same lease, bounded by the count timeout.
func (s *queryService) totalRecords(ctx context.Context, run *queryRun, dialect datasource.Dialect, plan models.ExecutionPlan, page, offset, rows int, hasMore bool) *int64 {
	if !hasMore && (rows > 0 || page == 1) {
		total := int64(offset + rows)
		return &total
	}
	if !s.cfg.ExactCounts {
		return nil
	}

	countCtx, cancel := context.WithTimeout(ctx, s.cfg.CountTimeout)
	defer cancel()

	n, err := datasource.QueryScalarInt64(countCtx, run.lease.Conn(), dialect.CountPlan(plan))
	if err != nil {
		outcome := metrics.OutcomeError
		if countCtx.Err() != nil {
			outcome = metrics.OutcomeTimeout
			run.lease.Discard()
		}
		s.metrics.ObserveCountProbe(run.backend.String(), outcome)
		run.logger.Warn("row count unavailable",
			zap.String("outcome", outcome),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil
	}

	s.metrics.ObserveCountProbe(run.backend.String(), metrics.OutcomeSuccess)
	return &n
}

// fail records a failed request and returns the caller-facing error. Full
// detail, including any denied keyword, is logged here and never returned.
func (s *queryService) fail(run *queryRun, req *models.QueryRequest, err error) error {
	failedAt := run.state
	run.advance(StateFailed)

	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.WithCause(apperrors.ErrQueryFailed, err)
	}

	fields := []zap.Field{
		zap.String("failed_after", string(failedAt)),
		zap.String("kind", string(appErr.Kind)),
		zap.String("query", logging.SanitizeQuery(req.Text)),
		zap.Duration("elapsed", time.Since(run.started)),
	}
	backend := req.Backend.String()
	var denied *sqlutil.DeniedKeywordError
	var finding *sqlutil.InjectionFinding
	switch {
	case errors.As(err, &finding):
		fields = append(fields, zap.String("param", finding.ParamName), zap.String("fingerprint", finding.Fingerprint))
		s.auditor.LogInjectionAttempt(run.id, backend, audit.SQLInjectionDetails{
			ParamName:   finding.ParamName,
			Fingerprint: finding.Fingerprint,
		})
	case errors.As(err, &denied):
		fields = append(fields, zap.String("keyword", denied.Keyword))
		s.auditor.LogDestructiveDenied(run.id, backend, denied.Keyword)
	case appErr.Kind == apperrors.KindPlaceholderMismatch:
		s.auditor.LogParameterValidation(run.id, backend, appErr.Message)
	}
	if appErr.Err != nil {
		fields = append(fields, zap.String("cause", logging.SanitizeError(appErr.Err)))
	}

	if appErr.HTTPStatus() >= 500 {
		run.logger.Error("query failed", fields...)
	} else {
		run.logger.Warn("query rejected", fields...)
	}

	outcome := string(appErr.Kind)
	if appErr.Kind == apperrors.KindQueryTimeout {
		outcome = metrics.OutcomeTimeout
	}
	s.metrics.ObserveQuery(backend, outcome, time.Since(run.started))

	return appErr
}

// classifyExecutionError maps an execution failure to a caller-safe error.
// Deadline expiry always wins; after that the dialect decides, and anything
// it does not recognise is a generic execution failure.
func classifyExecutionError(dialect datasource.Dialect, err error) *apperrors.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.WithCause(apperrors.ErrQueryTimeout, err)
	}
	if appErr, ok := apperrors.As(err); ok {
		return appErr
	}
	if classified := dialect.ClassifyError(err); classified != nil {
		return classified
	}
	return apperrors.WithCause(apperrors.ErrQueryFailed, err)
}
