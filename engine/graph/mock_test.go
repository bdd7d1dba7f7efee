package graph

import (
	"context"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type mockResult struct {
	records []*neo4j.Record
	idx     int
}

func newMockResult(recs ...*neo4j.Record) *mockResult {
	return &mockResult{records: recs}
}

func (m *mockResult) Next(context.Context) bool {
	if m.idx < len(m.records) {
		m.idx++
		return true
	}
	return false
}

func (m *mockResult) Record() *neo4j.Record { return m.records[m.idx-1] }

func record(keys []string, vals ...any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: vals}
}

// mockSession answers every Run through respond and records the statements.
type mockSession struct {
	mu       sync.Mutex
	cyphers  []string
	params   []map[string]any
	writes   int
	writeErr error
	respond  func(cypher string, params map[string]any) (CypherResult, error)
}

func (s *mockSession) Run(_ context.Context, cypher string, params map[string]any) (CypherResult, error) {
	s.mu.Lock()
	s.cyphers = append(s.cyphers, cypher)
	s.params = append(s.params, params)
	s.mu.Unlock()
	if s.respond == nil {
		return newMockResult(), nil
	}
	return s.respond(cypher, params)
}

func (s *mockSession) ExecuteWrite(_ context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	return work(s)
}

func (s *mockSession) Close(context.Context) error { return nil }

type mockOpener struct {
	session *mockSession
}

func (o *mockOpener) OpenSession(context.Context) CypherSession { return o.session }

func newMockStore(sess *mockSession) *GraphStore {
	return NewWithOpener(&mockOpener{session: sess})
}
