package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/metrics"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

func newQueryService(t *testing.T, cfg QueryServiceConfig, connectors ...datasource.Connector) QueryService {
	t.Helper()
	return NewQueryService(newManager(t, connectors...), newRegistry(), cfg, nil, zaptest.NewLogger(t))
}

// assertLeasesBalanced checks every connection handed out was ended exactly once.
func assertLeasesBalanced(t *testing.T, c *stubConnector) {
	t.Helper()
	assert.Equal(t, c.connects.Load(), c.released.Load()+c.discarded.Load(), "every lease must end exactly once")
}

func rawRequest(text string, page, pageSize int) *models.QueryRequest {
	return &models.QueryRequest{Backend: models.BackendPooled, Text: text, Page: page, PageSize: pageSize}
}

func TestQueryService_LiftsLiteralsIntoBoundValues(t *testing.T) {
	pool := newStubPool(func(ctx context.Context, query string, args []any) (datasource.Rows, error) {
		return parcelRows(101, 3), nil
	})
	svc := newQueryService(t, testQueryConfig(), pool)

	result, err := svc.Execute(context.Background(),
		rawRequest("SELECT * FROM parcels WHERE city = 'Seattle' AND id > 100 LIMIT 10", 1, 10))
	require.NoError(t, err)

	queries := pool.recorded()
	require.Len(t, queries, 1, "a short first page needs no count probe")
	assert.Equal(t, "SELECT * FROM (SELECT * FROM parcels WHERE city = $1 AND id > $2 LIMIT 10) AS _page LIMIT 11 OFFSET 0", queries[0].text)
	assert.Equal(t, []any{"Seattle", int64(100)}, queries[0].args)

	page := result.Page
	require.Len(t, page.Data, 3)
	assert.Equal(t, models.ColumnTypeInteger, page.ColumnTypes["id"])
	assert.Equal(t, models.ColumnTypeString, page.ColumnTypes["city"])
	require.NotNil(t, page.Pagination.TotalRecords)
	assert.Equal(t, int64(3), *page.Pagination.TotalRecords)
	assert.Equal(t, 1, *page.Pagination.TotalPages)
	assert.NotEmpty(t, result.RequestID)

	assert.Equal(t, int32(1), pool.released.Load())
	assert.Equal(t, int32(0), pool.discarded.Load())
}

func TestQueryService_CountProbeGivesExactTotal(t *testing.T) {
	pool := newStubPool(func(ctx context.Context, query string, args []any) (datasource.Rows, error) {
		if strings.HasPrefix(query, "SELECT COUNT(*)") {
			return countRows(42), nil
		}
		return parcelRows(1, 11), nil
	})
	svc := newQueryService(t, testQueryConfig(), pool)

	result, err := svc.Execute(context.Background(), rawRequest("SELECT * FROM parcels ORDER BY id", 1, 10))
	require.NoError(t, err)

	queries := pool.recorded()
	require.Len(t, queries, 2)
	assert.Equal(t, "SELECT COUNT(*) FROM (SELECT * FROM parcels) AS _count", queries[1].text)

	p := result.Page.Pagination
	assert.Len(t, result.Page.Data, 10)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 10, p.PageSize)
	assert.Equal(t, 5, *p.TotalPages)
	assert.Equal(t, int64(42), *p.TotalRecords)
	assert.True(t, p.HasNext)
	assert.True(t, p.CountExact)
	assertLeasesBalanced(t, pool)
}

func TestQueryService_ClampsPaging(t *testing.T) {
	pool := newStubPool(func(ctx context.Context, query string, args []any) (datasource.Rows, error) {
		return parcelRows(1, 2), nil
	})
	svc := newQueryService(t, testQueryConfig(), pool)

	result, err := svc.Execute(context.Background(), rawRequest("SELECT * FROM parcels", -4, 5000))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Page.Pagination.Page)
	assert.Equal(t, 50, result.Page.Pagination.PageSize)
	assert.Contains(t, pool.recorded()[0].text, "LIMIT 51 OFFSET 0")
}

func TestQueryService_UnboundedPageKeepsOffsetPositive(t *testing.T) {
	pool := newStubPool(func(ctx context.Context, query string, args []any) (datasource.Rows, error) {
		return parcelRows(0, 0), nil
	})
	svc := newQueryService(t, testQueryConfig(), pool)

	result, err := svc.Execute(context.Background(), rawRequest("SELECT * FROM parcels", math.MaxInt, 50))
	require.NoError(t, err)

	last := math.MaxInt / 50
	assert.Equal(t, last, result.Page.Pagination.Page)
	assert.Contains(t, pool.recorded()[0].text, fmt.Sprintf("LIMIT 51 OFFSET %d", (last-1)*50))
	assert.NotContains(t, pool.recorded()[0].text, "OFFSET -")
}

func TestQueryService_UnknownCountWhenDisabled(t *testing.T) {
	pool := newStubPool(func(ctx context.Context, query string, args []any) (datasource.Rows, error) {
		return parcelRows(21, 11), nil
	})
	cfg := testQueryConfig()
	cfg.ExactCounts = false
	svc := newQueryService(t, cfg, pool)

	result, err := svc.Execute(context.Background(), rawRequest("SELECT * FROM parcels", 3, 10))
	require.NoError(t, err)

	p := result.Page.Pagination
	assert.Nil(t, p.TotalRecords)
	assert.Nil(t, p.TotalPages)
	assert.False(t, p.CountExact)
	assert.True(t, p.HasNext)
	assert.True(t, p.HasPrev)
	assert.Contains(t, pool.recorded()[0].text, "LIMIT 11 OFFSET 20")
	assert.Len(t, pool.recorded(), 1)
}

func TestQueryService_CountTimeoutReportsUnknown(t *testing.T) {
	pool := newStubPool(func(ctx context.Context, query string, args []any) (datasource.Rows, error) {
		if strings.HasPrefix(query, "SELECT COUNT(*)") {
			return blockUntilDone(ctx)
		}
		return parcelRows(1, 11), nil
	})
	svc := newQueryService(t, testQueryConfig(), pool)

	result, err := svc.Execute(context.Background(), rawRequest("SELECT * FROM parcels", 1, 10))
	require.NoError(t, err)

	assert.Nil(t, result.Page.Pagination.TotalRecords)
	assert.True(t, result.Page.Pagination.HasNext)
	assert.Len(t, result.Page.Data, 10)
	assert.Equal(t, int32(1), pool.discarded.Load(), "a timed-out probe's connection is discarded")
	assert.Equal(t, int32(0), pool.released.Load())
}

func TestQueryService_DestructiveQueryNeverAcquires(t *testing.T) {
	pool := newStubPool(func(ctx context.Context, query string, args []any) (datasource.Rows, error) {
		t.Fatal("no statement may reach the backend")
		return nil, nil
	})
	svc := newQueryService(t, testQueryConfig(), pool)

	_, err := svc.Execute(context.Background(), rawRequest("DROP TABLE parcels", 1, 10))
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindDestructiveOperation, appErr.Kind)
	assert.NotContains(t, appErr.Message, "DROP")
	assert.Equal(t, int32(0), pool.connects.Load())
}

func TestQueryService_StatementTimeoutDiscardsLease(t *testing.T) {
	pool := newStubPool(func(ctx context.Context, query string, args []any) (datasource.Rows, error) {
		return blockUntilDone(ctx)
	})
	cfg := testQueryConfig()
	cfg.StatementTimeout = 50 * time.Millisecond
	svc := newQueryService(t, cfg, pool)

	_, err := svc.Execute(context.Background(), rawRequest("SELECT pg_sleep(10)", 1, 10))
	require.Error(t, err)

	assert.True(t, apperrors.IsKind(err, apperrors.KindQueryTimeout))
	assert.Equal(t, int32(1), pool.discarded.Load())
	assert.Equal(t, int32(0), pool.released.Load())
}

func TestQueryService_BackendErrorIsSanitized(t *testing.T) {
	pool := newStubPool(func(ctx context.Context, query string, args []any) (datasource.Rows, error) {
		return nil, &pgconn.PgError{Code: "42P01", Message: `relation "payroll_secrets" does not exist`}
	})
	svc := newQueryService(t, testQueryConfig(), pool)

	_, err := svc.Execute(context.Background(), rawRequest("SELECT * FROM payroll_secrets", 1, 10))
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindQueryExecution, appErr.Kind)
	assert.Equal(t, "Referenced table or column does not exist", appErr.Message)
	assert.NotContains(t, appErr.Message, "payroll_secrets")
	assert.Equal(t, 400, appErr.HTTPStatus())
	assert.Equal(t, int32(1), pool.released.Load())
	assertLeasesBalanced(t, pool)
}

func TestQueryService_UnconfiguredBackendFailsWithoutIO(t *testing.T) {
	pool := newStubPool(nil)
	svc := newQueryService(t, testQueryConfig(), pool)

	req := rawRequest("SELECT 1", 1, 10)
	req.Backend = models.BackendODBC
	_, err := svc.Execute(context.Background(), req)

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindBackendUnavailable))
	assert.Equal(t, int32(0), pool.connects.Load())
}

func TestQueryService_NamedParameters(t *testing.T) {
	pool := newStubPool(func(ctx context.Context, query string, args []any) (datasource.Rows, error) {
		return parcelRows(1, 1), nil
	})
	svc := newQueryService(t, testQueryConfig(), pool)

	_, err := svc.Execute(context.Background(), &models.QueryRequest{
		Backend:       models.BackendPooled,
		Text:          "SELECT * FROM parcels WHERE city = :city AND id > :min_id",
		Parameterized: true,
		Style:         models.ParamStyleNamed,
		NamedParams:   map[string]any{"city": "Seattle", "min_id": int64(10)},
	})
	require.NoError(t, err)

	q := pool.recorded()[0]
	assert.Equal(t, "SELECT * FROM (SELECT * FROM parcels WHERE city = $1 AND id > $2) AS _page LIMIT 11 OFFSET 0", q.text)
	assert.Equal(t, []any{"Seattle", int64(10)}, q.args)
}

func TestQueryService_QmarkParametersOnSQLServer(t *testing.T) {
	odbc := &stubConnector{backend: models.BackendODBC, handler: func(ctx context.Context, query string, args []any) (datasource.Rows, error) {
		return parcelRows(1, 1), nil
	}}
	svc := newQueryService(t, testQueryConfig(), odbc)

	_, err := svc.Execute(context.Background(), &models.QueryRequest{
		Backend:       models.BackendODBC,
		Text:          "SELECT * FROM parcels WHERE city = ? ORDER BY id",
		Parameterized: true,
		Style:         models.ParamStyleQmark,
		Positional:    []any{"Tacoma"},
	})
	require.NoError(t, err)

	q := odbc.recorded()[0]
	assert.Equal(t, "SELECT * FROM parcels WHERE city = @p1 ORDER BY id OFFSET 0 ROWS FETCH NEXT 11 ROWS ONLY", q.text)
	assert.Equal(t, []any{"Tacoma"}, q.args)
	assertLeasesBalanced(t, odbc)
}

func TestQueryService_PlaceholderMismatch(t *testing.T) {
	pool := newStubPool(nil)
	svc := newQueryService(t, testQueryConfig(), pool)

	_, err := svc.Execute(context.Background(), &models.QueryRequest{
		Backend:       models.BackendPooled,
		Text:          "SELECT * FROM parcels WHERE city = :city",
		Parameterized: true,
		Style:         models.ParamStyleNamed,
		NamedParams:   map[string]any{"town": "Seattle"},
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindPlaceholderMismatch))
	assert.Equal(t, int32(0), pool.connects.Load())
}

func TestQueryService_InjectedParameterRejected(t *testing.T) {
	pool := newStubPool(nil)
	svc := newQueryService(t, testQueryConfig(), pool)

	_, err := svc.Execute(context.Background(), &models.QueryRequest{
		Backend:       models.BackendPooled,
		Text:          "SELECT * FROM parcels WHERE city = :city",
		Parameterized: true,
		NamedParams:   map[string]any{"city": "' OR '1'='1"},
	})

	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindDestructiveOperation, appErr.Kind)
	assert.NotContains(t, appErr.Message, "OR")
	assert.Equal(t, int32(0), pool.connects.Load())
}

func TestQueryService_SecurityRejectionsAreAudited(t *testing.T) {
	tests := []struct {
		name    string
		req     *models.QueryRequest
		message string
		level   zapcore.Level
		field   string
		value   string
	}{
		{
			name:    "injected parameter",
			req:     &models.QueryRequest{Backend: models.BackendPooled, Text: "SELECT * FROM parcels WHERE city = :city", Parameterized: true, NamedParams: map[string]any{"city": "' OR '1'='1"}},
			message: "SQL injection attempt detected",
			level:   zapcore.ErrorLevel,
			field:   "param_name",
			value:   "city",
		},
		{
			name:    "denied keyword",
			req:     rawRequest("TRUNCATE parcels", 1, 10),
			message: "Destructive statement denied",
			level:   zapcore.WarnLevel,
			field:   "keyword",
			value:   "TRUNCATE",
		},
		{
			name:    "placeholder mismatch",
			req:     &models.QueryRequest{Backend: models.BackendPooled, Text: "SELECT * FROM parcels WHERE city = :city", Parameterized: true, Style: models.ParamStyleNamed, NamedParams: map[string]any{"town": "Seattle"}},
			message: "Parameter validation failed",
			level:   zapcore.WarnLevel,
			field:   "backend",
			value:   "pooled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, recorded := observer.New(zapcore.DebugLevel)
			svc := NewQueryService(newManager(t, newStubPool(nil)), newRegistry(), testQueryConfig(), nil, zap.New(core))

			tt.req.RequestID = "req-audit"
			_, err := svc.Execute(context.Background(), tt.req)
			require.Error(t, err)

			entries := recorded.FilterLoggerName("security_audit").FilterMessage(tt.message).All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
			fields := entries[0].ContextMap()
			assert.Equal(t, "req-audit", fields["request_id"])
			assert.Equal(t, tt.value, fields[tt.field])
		})
	}
}

func TestQueryService_PoolExhausted(t *testing.T) {
	pool := newStubPool(func(ctx context.Context, query string, args []any) (datasource.Rows, error) {
		return parcelRows(1, 1), nil
	})
	pool.max = 1
	mgr := newManager(t, pool)
	svc := NewQueryService(mgr, newRegistry(), testQueryConfig(), nil, zaptest.NewLogger(t))

	held, err := mgr.Acquire(context.Background(), models.BackendPooled)
	require.NoError(t, err)

	_, err = svc.Execute(context.Background(), rawRequest("SELECT 1", 1, 10))
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindPoolExhausted))

	held.Release()
	_, err = svc.Execute(context.Background(), rawRequest("SELECT 1", 1, 10))
	require.NoError(t, err)
	assertLeasesBalanced(t, pool)
}

func TestQueryService_RecordsMetrics(t *testing.T) {
	pool := newStubPool(func(ctx context.Context, query string, args []any) (datasource.Rows, error) {
		return parcelRows(1, 1), nil
	})
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	svc := NewQueryService(newManager(t, pool), newRegistry(), testQueryConfig(), rec, zaptest.NewLogger(t))

	_, err := svc.Execute(context.Background(), rawRequest("SELECT 1", 1, 10))
	require.NoError(t, err)
	_, err = svc.Execute(context.Background(), rawRequest("DELETE FROM parcels", 1, 10))
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "gateway_queries_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per outcome")
}

func TestClassifyExecutionError(t *testing.T) {
	dialect, err := newRegistry().Get(models.BackendPooled)
	require.NoError(t, err)

	timeout := classifyExecutionError(dialect, context.DeadlineExceeded)
	assert.Equal(t, apperrors.KindQueryTimeout, timeout.Kind)

	syntax := classifyExecutionError(dialect, &pgconn.PgError{Code: "42601"})
	assert.Equal(t, "Query has a syntax error", syntax.Message)

	unknown := classifyExecutionError(dialect, assert.AnError)
	assert.Equal(t, apperrors.ErrQueryFailed.Message, unknown.Message)
	assert.ErrorIs(t, unknown, assert.AnError)
}
