// Package neograph implements graph.Store on Neo4j 5 via the official Bolt
// driver. All Cypher lives here; the rest of the codebase speaks the
// semantic operation interfaces only.
package neograph

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/enliterate-io/enliterate/internal/graph"
)

// identPattern restricts interpolated labels, relationship types, and
// property names. Everything else travels as query parameters.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdent(kind, name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid %s %q", kind, name)
	}
	return nil
}

// Config carries the connection settings for a Neo4j store.
type Config struct {
	URI      string
	Username string
	Password string

	// MultiDatabase enables per-batch database provisioning. Community
	// edition servers run everything in the default database instead.
	MultiDatabase bool
}

// Store wraps a Bolt driver.
type Store struct {
	driver        neo4j.DriverWithContext
	multiDatabase bool
}

// New connects to the server and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("verifying neo4j connectivity: %w", err)
	}
	return &Store{driver: driver, multiDatabase: cfg.MultiDatabase}, nil
}

func (s *Store) EnsureDatabase(ctx context.Context, name string) error {
	if !s.multiDatabase {
		return nil
	}
	// Database names cannot be parameterized; quote and interpolate.
	query := fmt.Sprintf("CREATE DATABASE `%s` IF NOT EXISTS", name)
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "system"})
	defer sess.Close(ctx)
	result, err := sess.Run(ctx, query, nil)
	if err != nil {
		return fmt.Errorf("creating database %s: %w", name, err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("creating database %s: %w", name, err)
	}
	return nil
}

func (s *Store) WaitOnline(ctx context.Context, name string, timeout time.Duration) error {
	if !s.multiDatabase {
		return s.driver.VerifyConnectivity(ctx)
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		status, err := s.databaseStatus(ctx, name)
		if err == nil && status == "online" {
			return nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return fmt.Errorf("waiting for database %s: %w", name, err)
			}
			return fmt.Errorf("database %s not online after %s (status %q)", name, timeout, status)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Store) databaseStatus(ctx context.Context, name string) (string, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "system"})
	defer sess.Close(ctx)
	result, err := sess.Run(ctx,
		"SHOW DATABASES YIELD name, currentStatus WHERE name = $name RETURN currentStatus",
		map[string]any{"name": name})
	if err != nil {
		return "", err
	}
	record, err := result.Single(ctx)
	if err != nil {
		return "", fmt.Errorf("database %s not found: %w", name, err)
	}
	status, _ := record.Values[0].(string)
	return status, nil
}

func (s *Store) DropDatabase(ctx context.Context, name string) error {
	if !s.multiDatabase {
		return fmt.Errorf("dropping database %s: multi-database support disabled", name)
	}
	query := fmt.Sprintf("DROP DATABASE `%s` IF EXISTS", name)
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "system"})
	defer sess.Close(ctx)
	result, err := sess.Run(ctx, query, nil)
	if err != nil {
		return fmt.Errorf("dropping database %s: %w", name, err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("dropping database %s: %w", name, err)
	}
	return nil
}

func (s *Store) Session(name string) graph.Session {
	if !s.multiDatabase {
		name = ""
	}
	return &session{driver: s.driver, database: name}
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

type session struct {
	driver   neo4j.DriverWithContext
	database string
}

// ExecuteSchema runs each DDL statement in its own implicit transaction.
// Neo4j refuses schema commands inside explicit transactions, so schema and
// data work never mix by construction.
func (s *session) ExecuteSchema(ctx context.Context, fn func(graph.SchemaTx) error) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer sess.Close(ctx)
	return fn(&schemaTx{ctx: ctx, sess: sess})
}

func (s *session) ExecuteWrite(ctx context.Context, fn func(graph.DataTx) error) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer sess.Close(ctx)
	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(&dataTx{readTx: readTx{ctx: ctx, tx: tx}})
	})
	return err
}

func (s *session) ExecuteRead(ctx context.Context, fn func(graph.ReadTx) error) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer sess.Close(ctx)
	_, err := sess.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(&readTx{ctx: ctx, tx: tx})
	})
	return err
}

func (s *session) Close(context.Context) error {
	return nil
}

type schemaTx struct {
	ctx  context.Context
	sess neo4j.SessionWithContext
}

func (t *schemaTx) run(query string) error {
	result, err := t.sess.Run(t.ctx, query, nil)
	if err != nil {
		return err
	}
	_, err = result.Consume(t.ctx)
	return err
}

func (t *schemaTx) EnsureUniqueConstraint(label, property string) error {
	if err := checkIdent("label", label); err != nil {
		return err
	}
	if err := checkIdent("property", property); err != nil {
		return err
	}
	query := fmt.Sprintf(
		"CREATE CONSTRAINT %s_%s_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		label, property, label, property)
	if err := t.run(query); err != nil {
		return fmt.Errorf("creating unique constraint %s.%s: %w", label, property, err)
	}
	return nil
}

func (t *schemaTx) EnsureExistenceConstraint(label, property string) error {
	if err := checkIdent("label", label); err != nil {
		return err
	}
	if err := checkIdent("property", property); err != nil {
		return err
	}
	query := fmt.Sprintf(
		"CREATE CONSTRAINT %s_%s_exists IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS NOT NULL",
		label, property, label, property)
	if err := t.run(query); err != nil {
		return fmt.Errorf("creating existence constraint %s.%s: %w", label, property, err)
	}
	return nil
}

func (t *schemaTx) EnsureIndex(label, property string) error {
	if err := checkIdent("label", label); err != nil {
		return err
	}
	if err := checkIdent("property", property); err != nil {
		return err
	}
	query := fmt.Sprintf(
		"CREATE INDEX %s_%s_idx IF NOT EXISTS FOR (n:%s) ON (n.%s)",
		label, property, label, property)
	if err := t.run(query); err != nil {
		return fmt.Errorf("creating index %s.%s: %w", label, property, err)
	}
	return nil
}

func (t *schemaTx) EnsureVectorIndex(name, label, property string, dimensions int) error {
	if err := checkIdent("index name", name); err != nil {
		return err
	}
	if err := checkIdent("label", label); err != nil {
		return err
	}
	if err := checkIdent("property", property); err != nil {
		return err
	}
	query := fmt.Sprintf(
		"CREATE VECTOR INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s) "+
			"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
		name, label, property, dimensions)
	if err := t.run(query); err != nil {
		return fmt.Errorf("creating vector index %s: %w", name, err)
	}
	return nil
}
