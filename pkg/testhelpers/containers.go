// Package testhelpers starts throwaway warehouse containers for integration
// tests.
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

// PostgresImage is the stock image used as a stand-in warehouse.
const PostgresImage = "postgres:16-alpine"

// TestDB holds a shared test database container and connection pool.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
	Host      string
	Port      int
	User      string
	Password  string
	Database  string
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

	db := &TestDB{User: "recon", Password: "test_password", Database: "warehouse"}

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       db.Database,
			"POSTGRES_USER":     db.User,
			"POSTGRES_PASSWORD": db.Password,
		},
		// The server restarts once after init scripts, so the line appears twice.
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
	db.Container = container

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}
	db.Host = host
	db.Port = port.Int()

	db.ConnStr = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		db.User, db.Password, host, port.Port(), db.Database)

	pool, err := pgxpool.New(ctx, db.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	db.Pool = pool

	return db, nil
}

// AdapterConfig returns the generic warehouse adapter map for this container.
func (db *TestDB) AdapterConfig() map[string]any {
	return map[string]any{
		"host":     db.Host,
		"port":     db.Port,
		"user":     db.User,
		"password": db.Password,
		"database": db.Database,
		"ssl_mode": "disable",
	}
}

// Exec runs setup statements, failing the test on error.
func (db *TestDB) Exec(t *testing.T, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		if _, err := db.Pool.Exec(context.Background(), stmt); err != nil {
			t.Fatalf("setup statement failed: %v\n%s", err, stmt)
		}
	}
}
