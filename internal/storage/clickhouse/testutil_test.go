package clickhouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var historyTables = []string{"entity_features", "assessment_history"}

// One ClickHouse container per package run.
var shared struct {
	once      sync.Once
	conn      *Conn
	err       error
	terminate func()
}

func TestMain(m *testing.M) {
	code := m.Run()
	if shared.terminate != nil {
		shared.terminate()
	}
	os.Exit(code)
}

// setupTestDB returns a connection with empty history tables.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	shared.once.Do(func() {
		shared.conn, shared.terminate, shared.err = startClickhouse(context.Background())
	})
	require.NoError(t, shared.err, "clickhouse container")

	ctx := context.Background()
	for _, table := range historyTables {
		require.NoError(t, shared.conn.Exec(ctx, "TRUNCATE TABLE "+table), "truncate %s", table)
	}
	return shared.conn, func() {}
}

func startClickhouse(ctx context.Context) (*Conn, func(), error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.1-alpine",
			ExposedPorts: []string{"9000/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Application: Ready for connections").WithStartupTimeout(60*time.Second),
				wait.ForListeningPort("9000/tcp"),
			),
			Env: map[string]string{
				"CLICKHOUSE_DB":       "safety_test",
				"CLICKHOUSE_USER":     "default",
				"CLICKHOUSE_PASSWORD": "",
			},
		},
		Started: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start container: %w", err)
	}
	terminate := func() { _ = container.Terminate(context.Background()) }

	host, err := container.Host(ctx)
	if err != nil {
		terminate()
		return nil, nil, err
	}
	port, err := container.MappedPort(ctx, "9000")
	if err != nil {
		terminate()
		return nil, nil, err
	}

	conn, err := NewConn(ctx, fmt.Sprintf("clickhouse://%s:%s/safety_test?dial_timeout=10s", host, port.Port()))
	if err != nil {
		terminate()
		return nil, nil, err
	}
	if err := applySchema(ctx, conn); err != nil {
		conn.Close()
		terminate()
		return nil, nil, err
	}
	return conn, func() {
		conn.Close()
		terminate()
	}, nil
}

// applySchema runs the schema files from disk, one statement at a time.
func applySchema(ctx context.Context, conn *Conn) error {
	files, err := filepath.Glob(filepath.Join("..", "migrations", "clickhouse", "*.sql"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no clickhouse migrations found")
	}
	sort.Strings(files)

	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		for _, stmt := range strings.Split(string(content), ";") {
			if strings.TrimSpace(stripComments(stmt)) == "" {
				continue
			}
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply %s: %w", f, err)
			}
		}
	}
	return nil
}

func stripComments(sql string) string {
	var b strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), "--") {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
