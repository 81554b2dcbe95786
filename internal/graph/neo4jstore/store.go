// Package neo4jstore implements graph.Store on a Neo4j server. Writes are
// issued as UNWIND batches inside one managed write transaction per
// WriteTx call.
package neo4jstore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/avast/retry-go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/dvloznov/statement-graph/internal/domain"
	"github.com/dvloznov/statement-graph/internal/graph"
	"github.com/dvloznov/statement-graph/internal/logger"
)

// Config holds connection settings.
type Config struct {
	URI      string
	User     string
	Password string
	Database string
	// ConnectAttempts bounds the connectivity check at startup.
	ConnectAttempts uint
	ConnectDelay    time.Duration
}

// Store wraps a Neo4j driver.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

// Open creates a driver and verifies connectivity, retrying while the
// server comes up. Failures are reported as GraphStoreUnavailable.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	log := logger.FromContext(ctx)

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, domain.WrapError(domain.KindGraphStoreUnavailable, err, "neo4jstore: create driver")
	}

	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 5
	}
	delay := cfg.ConnectDelay
	if delay == 0 {
		delay = 2 * time.Second
	}

	err = retry.Do(
		func() error {
			return driver.VerifyConnectivity(ctx)
		},
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Str("uri", cfg.URI).Msg("Neo4j not reachable, retrying")
		}),
	)
	if err != nil {
		_ = driver.Close(ctx)
		return nil, domain.WrapError(domain.KindGraphStoreUnavailable, err, "neo4jstore: verify connectivity")
	}

	log.Info().Str("uri", cfg.URI).Str("database", cfg.Database).Msg("Connected to Neo4j")
	return &Store{driver: driver, database: cfg.Database}, nil
}

func (s *Store) OpenSession(ctx context.Context) (graph.Session, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	return &session{sess: sess}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return domain.WrapError(domain.KindGraphStoreUnavailable, err, "neo4jstore: ping")
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

var constraints = []string{
	"CREATE CONSTRAINT category_name IF NOT EXISTS FOR (c:Category) REQUIRE c.name IS UNIQUE",
	"CREATE CONSTRAINT merchant_name IF NOT EXISTS FOR (m:Merchant) REQUIRE m.name IS UNIQUE",
	"CREATE CONSTRAINT batch_upload_id IF NOT EXISTS FOR (b:BatchUpload) REQUIRE b.batch_id IS UNIQUE",
	"CREATE CONSTRAINT transaction_id IF NOT EXISTS FOR (t:Transaction) REQUIRE t.id IS UNIQUE",
	"CREATE INDEX transaction_batch IF NOT EXISTS FOR (t:Transaction) ON (t.batch_id)",
}

// EnsureConstraints creates the uniqueness constraints that make MERGE on
// Category and Merchant atomic per name, plus the batch lookup index.
func (s *Store) EnsureConstraints(ctx context.Context) error {
	log := logger.FromContext(ctx)
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer sess.Close(ctx)

	for _, stmt := range constraints {
		res, err := sess.Run(ctx, stmt, nil)
		if err != nil {
			return fmt.Errorf("EnsureConstraints: run %q: %w", stmt, err)
		}
		if _, err := res.Consume(ctx); err != nil {
			return fmt.Errorf("EnsureConstraints: consume %q: %w", stmt, err)
		}
		log.Debug().Str("statement", stmt).Msg("Applied schema statement")
	}
	return nil
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// checkIdentifiers guards label, type and property names that are spliced
// into Cypher text, since parameters cannot stand in for them.
func checkIdentifiers(names ...string) error {
	for _, n := range names {
		if !identifier.MatchString(n) {
			return fmt.Errorf("neo4jstore: invalid identifier %q", n)
		}
	}
	return nil
}

func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if neo4j.IsConnectivityError(err) {
		return domain.WrapError(domain.KindGraphStoreUnavailable, err, what)
	}
	return fmt.Errorf("%s: %w", what, err)
}
