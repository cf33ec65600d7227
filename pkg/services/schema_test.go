package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

// catalogDialect answers introspection from fixed data and keeps the
// PostgreSQL rendering for everything else.
type catalogDialect struct {
	*postgres.Dialect
	tables    []datasource.TableRef
	columns   []models.SchemaColumn
	rels      []models.SchemaRelationship
	columnErr error
}

func (d *catalogDialect) DiscoverTables(context.Context, datasource.Conn) ([]datasource.TableRef, error) {
	return d.tables, nil
}

func (d *catalogDialect) DiscoverColumns(context.Context, datasource.Conn) ([]models.SchemaColumn, error) {
	return d.columns, d.columnErr
}

func (d *catalogDialect) DiscoverRelationships(context.Context, datasource.Conn) ([]models.SchemaRelationship, error) {
	return d.rels, nil
}

func parcelCatalog() *catalogDialect {
	return &catalogDialect{
		Dialect: postgres.NewDialect(),
		tables: []datasource.TableRef{
			{Schema: "public", Name: "owners"},
			{Schema: "public", Name: "parcels"},
			{Schema: "audit", Name: "parcel_events"},
		},
		columns: []models.SchemaColumn{
			{TableName: "parcels", ColumnName: "id", DataType: models.DataTypeInteger, IsPrimaryKey: true},
			{TableName: "parcels", ColumnName: "owner_id", DataType: models.DataTypeInteger, IsNullable: true, IsForeignKey: true},
		},
		rels: []models.SchemaRelationship{
			{SourceTable: "parcels", SourceColumn: "owner_id", TargetTable: "owners", TargetColumn: "id"},
			{SourceTable: "audit.parcel_events", SourceColumn: "parcel_id", TargetTable: "parcels", TargetColumn: "id"},
		},
	}
}

func newSchemaService(t *testing.T, dialect datasource.Dialect, pool *stubConnector) SchemaService {
	t.Helper()
	return NewSchemaService(
		newManager(t, pool),
		datasource.NewRegistry(dialect),
		SchemaServiceConfig{CountTimeout: 100 * time.Millisecond},
		nil,
		zaptest.NewLogger(t),
	)
}

func TestSchemaService_Discover(t *testing.T) {
	pool := newStubPool(nil)
	svc := newSchemaService(t, parcelCatalog(), pool)

	cols, err := svc.Discover(context.Background(), models.BackendPooled)
	require.NoError(t, err)

	require.Len(t, cols, 2)
	assert.True(t, cols[0].IsPrimaryKey)
	assert.True(t, cols[1].IsForeignKey)
	assert.Equal(t, int32(1), pool.released.Load())
}

func TestSchemaService_DiscoverClassifiesCatalogErrors(t *testing.T) {
	dialect := parcelCatalog()
	dialect.columnErr = errors.New("read tcp 10.0.0.4:5432: connection reset by peer")
	pool := newStubPool(nil)
	svc := newSchemaService(t, dialect, pool)

	_, err := svc.Discover(context.Background(), models.BackendPooled)
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrQueryFailed.Message, appErr.Message)
	assert.NotContains(t, appErr.Message, "10.0.0.4")
	assertLeasesBalanced(t, pool)
}

func TestSchemaService_Summarize(t *testing.T) {
	pool := newStubPool(func(ctx context.Context, query string, args []any) (datasource.Rows, error) {
		switch {
		case strings.Contains(query, `"owners"`):
			return countRows(3), nil
		case strings.Contains(query, `"parcels"`):
			return countRows(42), nil
		case strings.Contains(query, `"parcel_events"`):
			return countRows(2), nil
		}
		return nil, errors.New("unexpected query")
	})
	svc := newSchemaService(t, parcelCatalog(), pool)

	summary, err := svc.Summarize(context.Background(), models.BackendPooled, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"owners", "parcels", "audit.parcel_events"}, summary.Tables)
	assert.Len(t, summary.Relationships, 2)
	require.NotNil(t, summary.TableCounts["parcels"])
	assert.Equal(t, int64(42), *summary.TableCounts["parcels"])
	assert.Equal(t, int64(2), *summary.TableCounts["audit.parcel_events"])
	assertLeasesBalanced(t, pool)
}

func TestSchemaService_SummarizePrefixFilters(t *testing.T) {
	pool := newStubPool(func(ctx context.Context, query string, args []any) (datasource.Rows, error) {
		return countRows(1), nil
	})
	svc := newSchemaService(t, parcelCatalog(), pool)

	summary, err := svc.Summarize(context.Background(), models.BackendPooled, "PARCEL")
	require.NoError(t, err)

	assert.Equal(t, []string{"parcels", "audit.parcel_events"}, summary.Tables)
	assert.NotContains(t, summary.TableCounts, "owners")
	for _, r := range summary.Relationships {
		assert.Contains(t, summary.Tables, r.SourceTable)
	}
}

func TestSchemaService_SummarizeCountTimeoutIsNull(t *testing.T) {
	pool := newStubPool(func(ctx context.Context, query string, args []any) (datasource.Rows, error) {
		if strings.Contains(query, `"parcels"`) {
			return blockUntilDone(ctx)
		}
		return countRows(7), nil
	})
	svc := newSchemaService(t, parcelCatalog(), pool)

	summary, err := svc.Summarize(context.Background(), models.BackendPooled, "")
	require.NoError(t, err)

	assert.Contains(t, summary.TableCounts, "parcels")
	assert.Nil(t, summary.TableCounts["parcels"])
	require.NotNil(t, summary.TableCounts["owners"])
	require.NotNil(t, summary.TableCounts["audit.parcel_events"])
	assert.Equal(t, int64(7), *summary.TableCounts["audit.parcel_events"])

	assert.Equal(t, int32(1), pool.discarded.Load())
	assert.Equal(t, int32(2), pool.connects.Load(), "a fresh lease replaces the discarded one")
	assertLeasesBalanced(t, pool)
}

func TestSchemaService_SummarizeRejectsLongPrefix(t *testing.T) {
	pool := newStubPool(nil)
	svc := newSchemaService(t, parcelCatalog(), pool)

	_, err := svc.Summarize(context.Background(), models.BackendPooled, strings.Repeat("x", MaxPrefixLength+1))
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Equal(t, int32(0), pool.connects.Load())
}

func TestSchemaService_UnknownBackend(t *testing.T) {
	pool := newStubPool(nil)
	svc := newSchemaService(t, parcelCatalog(), pool)

	_, err := svc.Discover(context.Background(), models.BackendODBC)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}
