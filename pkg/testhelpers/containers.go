// Package testhelpers provides utilities for testing ekaya-gateway components.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresImage is the image used for PostgreSQL integration tests.
const PostgresImage = "postgres:16-alpine"

const (
	TestUser     = "gateway"
	TestPassword = "test_password"
	TestDatabase = "test_data"
)

// Fixture is the schema loaded into the shared container. It covers a
// cross-schema foreign key, a composite foreign key and a spread of
// column types for type normalisation tests.
const Fixture = `
CREATE TABLE owners (
	id         integer PRIMARY KEY,
	name       varchar(100) NOT NULL,
	email      text,
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE parcels (
	id          bigint PRIMARY KEY,
	owner_id    integer REFERENCES owners(id),
	city        text NOT NULL,
	area_sqft   numeric(12,2),
	assessed    double precision,
	is_vacant   boolean NOT NULL DEFAULT false,
	recorded_on date,
	deed        bytea,
	tags        text[]
);

CREATE SCHEMA audit;

CREATE TABLE audit.parcel_events (
	event_id  serial PRIMARY KEY,
	parcel_id bigint NOT NULL REFERENCES parcels(id),
	note      text
);

CREATE SCHEMA survey;

CREATE TABLE survey.plats (
	county  text NOT NULL,
	plat_no integer NOT NULL,
	PRIMARY KEY (county, plat_no)
);

CREATE TABLE survey.lots (
	lot_id  serial PRIMARY KEY,
	county  text NOT NULL,
	plat_no integer NOT NULL,
	FOREIGN KEY (county, plat_no) REFERENCES survey.plats (county, plat_no)
);

INSERT INTO owners (id, name, email) VALUES
	(1, 'Ada', 'ada@example.com'),
	(2, 'Grace', NULL),
	(3, 'Linus', 'linus@example.com');

INSERT INTO parcels (id, owner_id, city, area_sqft, assessed, is_vacant, recorded_on)
SELECT g, 1 + (g % 3),
       CASE WHEN g % 2 = 0 THEN 'Seattle' ELSE 'Tacoma' END,
       1000 + g, 250000.5 + g, g % 5 = 0, DATE '2020-01-01' + g
FROM generate_series(1, 42) AS g;

INSERT INTO audit.parcel_events (parcel_id, note) VALUES (2, 'split'), (4, 'merged');

INSERT INTO survey.plats VALUES ('King', 1), ('King', 2);
INSERT INTO survey.lots (county, plat_no) VALUES ('King', 1), ('King', 1), ('King', 2);
`

// TestDB holds a shared test database container and connection pool.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
	Host      string
	Port      int
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       TestDatabase,
			"POSTGRES_USER":     TestUser,
			"POSTGRES_PASSWORD": TestPassword,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		TestUser, TestPassword, host, port.Port(), TestDatabase)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err = pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("test database never became reachable: %w", err)
	}

	if _, err := pool.Exec(ctx, Fixture); err != nil {
		return nil, fmt.Errorf("failed to load fixture: %w", err)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
		Host:      host,
		Port:      port.Int(),
	}, nil
}
