// Package cassandra opens gocql sessions against a self-managed cluster or a
// hosted one described by a secure connect bundle.
package cassandra

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"countries/internal/platform/config"
)

// NewCluster builds the cluster config for cfg without connecting.
func NewCluster(ctx context.Context, cfg config.CassandraConfig) (*gocql.ClusterConfig, error) {
	var cluster *gocql.ClusterConfig
	if cfg.BundlePath != "" {
		bundle, err := LoadBundle(cfg.BundlePath)
		if err != nil {
			return nil, err
		}
		cluster, err = bundle.Cluster(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		cluster = gocql.NewCluster(cfg.Hosts...)
	}

	consistency, err := gocql.ParseConsistencyWrapper(cfg.Consistency)
	if err != nil {
		return nil, fmt.Errorf("cassandra consistency: %w", err)
	}

	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = consistency
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.ProtoVersion = 4
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
		cluster.ConnectTimeout = cfg.Timeout
	}
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	return cluster, nil
}

// NewSession connects to the cluster described by cfg.
func NewSession(ctx context.Context, cfg config.CassandraConfig) (*gocql.Session, error) {
	cluster, err := NewCluster(ctx, cfg)
	if err != nil {
		return nil, err
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("create cassandra session: %w", err)
	}
	return session, nil
}
