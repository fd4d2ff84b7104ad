//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/testcontainers/testcontainers-go"
	tccassandra "github.com/testcontainers/testcontainers-go/modules/cassandra"
)

// TestKeyspace is created on start by NewCassandraContainer.
const TestKeyspace = "countries_test"

// CassandraContainer wraps a single node Cassandra instance with a session
// bound to TestKeyspace.
type CassandraContainer struct {
	Container testcontainers.Container
	Host      string
	Session   *gocql.Session
}

// NewCassandraContainer starts Cassandra, creates TestKeyspace and applies schema.
// schema statements are executed in order against the keyspace.
func NewCassandraContainer(t *testing.T, schema ...string) *CassandraContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tccassandra.Run(ctx, "cassandra:4.1.3")
	if err != nil {
		t.Fatalf("failed to start cassandra container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.ConnectionHost(ctx)
	if err != nil {
		t.Fatalf("failed to get cassandra host: %v", err)
	}

	admin := gocql.NewCluster(host)
	admin.Timeout = 30 * time.Second
	admin.ConnectTimeout = 30 * time.Second
	adminSession, err := admin.CreateSession()
	if err != nil {
		t.Fatalf("failed to connect to cassandra: %v", err)
	}
	err = adminSession.Query(`CREATE KEYSPACE IF NOT EXISTS ` + TestKeyspace +
		` WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`).Exec()
	adminSession.Close()
	if err != nil {
		t.Fatalf("failed to create keyspace: %v", err)
	}

	cluster := gocql.NewCluster(host)
	cluster.Keyspace = TestKeyspace
	cluster.Timeout = 30 * time.Second
	cluster.Consistency = gocql.One
	cluster.SerialConsistency = gocql.LocalSerial
	session, err := cluster.CreateSession()
	if err != nil {
		t.Fatalf("failed to open keyspace session: %v", err)
	}
	t.Cleanup(session.Close)

	for _, stmt := range schema {
		if err := session.Query(stmt).Exec(); err != nil {
			t.Fatalf("failed to apply schema: %v", err)
		}
	}

	return &CassandraContainer{
		Container: container,
		Host:      host,
		Session:   session,
	}
}

// Truncate empties the given table.
func (c *CassandraContainer) Truncate(table string) error {
	return c.Session.Query(`TRUNCATE ` + table).Exec()
}
