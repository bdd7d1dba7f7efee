package graph

import (
	"context"

	"github.com/WessleyAI/manualkg/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// CypherResult is the row cursor of a query.
type CypherResult = repo.Result

// CypherRunner runs one Cypher statement.
type CypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error)
}

// CypherSession is the subset of a Neo4j session the store uses.
type CypherSession interface {
	CypherRunner
	ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error)
	Close(ctx context.Context) error
}

// SessionOpener opens sessions. Tests swap in fakes.
type SessionOpener interface {
	OpenSession(ctx context.Context) CypherSession
}

type driverOpener struct {
	driver   neo4j.DriverWithContext
	database string
}

func (o driverOpener) OpenSession(ctx context.Context) CypherSession {
	return &driverSession{sess: o.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: o.database})}
}

type driverSession struct {
	sess neo4j.SessionWithContext
}

func (s *driverSession) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	return s.sess.Run(ctx, cypher, params)
}

func (s *driverSession) ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	return s.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(txRunner{tx: tx})
	})
}

func (s *driverSession) Close(ctx context.Context) error { return s.sess.Close(ctx) }

type txRunner struct {
	tx neo4j.ManagedTransaction
}

func (t txRunner) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	return t.tx.Run(ctx, cypher, params)
}
