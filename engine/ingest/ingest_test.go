package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/extract"
	"github.com/WessleyAI/manualkg/engine/graph"
	"github.com/WessleyAI/manualkg/engine/manual"
	"github.com/WessleyAI/manualkg/pkg/fn"
	"github.com/WessleyAI/manualkg/pkg/metrics"
	"github.com/WessleyAI/manualkg/pkg/resilience"
)

// --- fakes ---

type fakeExtractor struct {
	triplets []domain.Triplet
	err      error
}

func (f fakeExtractor) MakeTriplets(_ context.Context, env *manual.Envelope) ([]domain.Triplet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.triplets, nil
}

type fakeStore struct {
	mu         sync.Mutex
	upserts    [][]domain.Triplet
	entries    map[string]graph.ManualEntry
	deleted    []string
	upsertErrs int // number of upserts that fail before succeeding
	getErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]graph.ManualEntry)}
}

func (s *fakeStore) UpsertTriplets(_ context.Context, ts []domain.Triplet) (graph.UpsertStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErrs > 0 {
		s.upsertErrs--
		return graph.UpsertStats{}, errors.New("neo4j unavailable")
	}
	s.upserts = append(s.upserts, ts)
	return graph.UpsertStats{Triplets: len(ts), Batches: 1}, nil
}

func (s *fakeStore) SaveManualEntry(_ context.Context, m graph.ManualEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[m.PartNo] = m
	return nil
}

func (s *fakeStore) GetManualEntry(_ context.Context, partNo string) (graph.ManualEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return graph.ManualEntry{}, false, s.getErr
	}
	m, ok := s.entries[partNo]
	return m, ok, nil
}

func (s *fakeStore) DeleteManual(_ context.Context, partNo string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, partNo)
	return 3, nil
}

func (s *fakeStore) entry(partNo string) (graph.ManualEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.entries[partNo]
	return m, ok
}

func (s *fakeStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.upserts)
}

func sampleTriplet(label, from, to string) domain.Triplet {
	return domain.NewTriplet(
		domain.NewNode(domain.NodeModel, from, nil),
		domain.NewRelation(label, map[string]any{domain.PropPartNumber: "MFL71485465"}),
		domain.NewNode(domain.NodeCause, to, nil),
	)
}

func envelope(product string, models ...string) *manual.Envelope {
	return &manual.Envelope{
		Status:     domain.StatusSuccess,
		Product:    product,
		PartNumber: "MFL71485465",
		Models:     models,
		Data:       map[string]any{},
	}
}

func validDoc() manual.Document {
	return manual.Document{
		PartNumber:      "MFL71485465",
		Troubleshooting: envelope("Washer", "WM3501H", "WM3500C"),
		Operation:       envelope("Washer", "WM3501H"),
	}
}

func testExtractors() map[manual.Kind]extract.Extractor {
	return map[manual.Kind]extract.Extractor{
		manual.KindTroubleshooting: fakeExtractor{triplets: []domain.Triplet{
			sampleTriplet("HAS_ERROR_CODE", "WM3501H", "UE"),
			sampleTriplet("HAS_NOISE_PROBLEM", "WM3501H", "Rattling"),
		}},
		manual.KindOperation: fakeExtractor{triplets: []domain.Triplet{
			sampleTriplet("HAS_OPERATION_SECTION", "WM3501H", "Using the washer"),
		}},
		manual.KindSpecification: fakeExtractor{err: fmt.Errorf("%w: failed", domain.ErrExtractionStatus)},
	}
}

func testDeps(store *fakeStore) Deps {
	return Deps{Extractors: testExtractors(), Store: store}
}

// --- stage tests ---

func TestValidate_Valid(t *testing.T) {
	res := Validate(context.Background(), validDoc())
	if res.IsErr() {
		_, err := res.Unwrap()
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	cases := map[string]manual.Document{
		"no part number": {Operation: &manual.Envelope{Status: domain.StatusSuccess}},
		"no sections":    {PartNumber: "MFL71485465"},
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Validate(context.Background(), doc).Unwrap()
			if !errors.Is(err, domain.ErrManualShape) {
				t.Fatalf("expected shape error, got %v", err)
			}
		})
	}
}

func TestExtract_OrderedUnion(t *testing.T) {
	doc := validDoc()
	doc.Specification = envelope("Washer", "WM3501H")

	out, err := NewExtract(testExtractors(), testLogger())(context.Background(), doc).Unwrap()
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(out.Triplets) != 3 {
		t.Fatalf("expected 3 triplets, got %d", len(out.Triplets))
	}
	if out.Triplets[0].Range.Name != "UE" || out.Triplets[2].Range.Name != "Using the washer" {
		t.Fatalf("triplets not in section order: %+v", out.Triplets)
	}
	if strings.Join(out.Sections, ",") != "troubleshooting,operation" {
		t.Fatalf("unexpected sections %v", out.Sections)
	}
	if _, ok := out.Rejected[manual.KindSpecification]; !ok {
		t.Fatalf("specification should be rejected: %v", out.Rejected)
	}
	if strings.Join(out.Models, ",") != "WM3500C,WM3501H" {
		t.Fatalf("unexpected models %v", out.Models)
	}
	if out.Product != extract.ProductWashingMachine {
		t.Fatalf("unexpected product %q", out.Product)
	}
}

func TestExtract_AllRejected(t *testing.T) {
	doc := manual.Document{PartNumber: "MFL1", Specification: envelope("Washer", "WM1")}
	_, err := NewExtract(testExtractors(), testLogger())(context.Background(), doc).Unwrap()
	if err == nil {
		t.Fatal("expected error when every section is rejected")
	}
	if !errors.Is(err, domain.ErrExtractionStatus) {
		t.Fatalf("expected extraction status cause, got %v", err)
	}
}

func TestExtract_MissingExtractor(t *testing.T) {
	_, err := NewExtract(nil, testLogger())(context.Background(), validDoc()).Unwrap()
	if err == nil || !strings.Contains(err.Error(), "no extractor") {
		t.Fatalf("expected missing extractor error, got %v", err)
	}
}

func TestUpsert_RegistersManual(t *testing.T) {
	store := newFakeStore()
	x := Extracted{
		PartNo:   "MFL71485465",
		Product:  "washing machine",
		Models:   []string{"WM3501H"},
		Sections: []string{"troubleshooting"},
		Triplets: []domain.Triplet{sampleTriplet("HAS_ERROR_CODE", "WM3501H", "UE")},
		Rejected: map[manual.Kind]string{manual.KindSpecification: "failed"},
	}
	out, err := NewUpsert(store, testLogger())(context.Background(), x).Unwrap()
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if out.Triplets != 1 || out.Skipped != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	m, ok := store.entry("MFL71485465")
	if !ok || m.Status != graph.ManualIngested || m.Triplets != 1 || m.IngestedAt.IsZero() {
		t.Fatalf("unexpected entry %+v", m)
	}
	if len(store.deleted) != 0 {
		t.Fatal("non-forced upsert must not delete")
	}
}

func TestUpsert_ForceDeletesFirst(t *testing.T) {
	store := newFakeStore()
	x := Extracted{PartNo: "MFL1", Force: true}
	if _, err := NewUpsert(store, testLogger())(context.Background(), x).Unwrap(); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "MFL1" {
		t.Fatalf("expected delete of MFL1, got %v", store.deleted)
	}
}

func TestUpsert_FailureMarksEntry(t *testing.T) {
	store := newFakeStore()
	store.upsertErrs = 1
	_, err := NewUpsert(store, testLogger())(context.Background(), Extracted{PartNo: "MFL1"}).Unwrap()
	if err == nil {
		t.Fatal("expected error")
	}
	m, _ := store.entry("MFL1")
	if m.Status != graph.ManualFailed || m.Error == "" {
		t.Fatalf("expected failed entry, got %+v", m)
	}
}

// --- pipeline tests ---

func TestPipeline_EndToEnd(t *testing.T) {
	store := newFakeStore()
	out, err := NewPipeline(testDeps(store))(context.Background(), validDoc()).Unwrap()
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if out.PartNo != "MFL71485465" || out.Triplets != 3 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if store.upsertCount() != 1 {
		t.Fatalf("expected one upsert, got %d", store.upsertCount())
	}
}

func TestPipeline_RetriesUpsert(t *testing.T) {
	store := newFakeStore()
	store.upsertErrs = 2
	deps := testDeps(store)
	deps.Retry = fn.RetryOpts{MaxAttempts: 3, InitialWait: 0, MaxWait: 0}

	if _, err := NewPipeline(deps)(context.Background(), validDoc()).Unwrap(); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	m, _ := store.entry("MFL71485465")
	if m.Status != graph.ManualIngested {
		t.Fatalf("expected ingested after retry, got %+v", m)
	}
}

func TestPipeline_BreakerOpens(t *testing.T) {
	store := newFakeStore()
	store.upsertErrs = 100
	deps := testDeps(store)
	deps.Breaker = resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 1})
	pipeline := NewPipeline(deps)

	if _, err := pipeline(context.Background(), validDoc()).Unwrap(); err == nil {
		t.Fatal("expected first call to fail")
	}
	_, err := pipeline(context.Background(), validDoc()).Unwrap()
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
}

func TestExtractPipeline_NoStore(t *testing.T) {
	deps := Deps{Extractors: testExtractors(), Metrics: metrics.New()}
	out, err := NewExtractPipeline(deps)(context.Background(), validDoc()).Unwrap()
	if err != nil {
		t.Fatalf("extract pipeline: %v", err)
	}
	if len(out.Triplets) != 3 {
		t.Fatalf("expected 3 triplets, got %d", len(out.Triplets))
	}
}

func TestPermanent(t *testing.T) {
	if !permanent(fmt.Errorf("wrap: %w", domain.NewShapeError("sections", nil))) {
		t.Fatal("shape errors are permanent")
	}
	if permanent(errors.New("neo4j unavailable")) {
		t.Fatal("transport errors are retryable")
	}
}

func TestRetryable(t *testing.T) {
	if !retryable(errors.New("neo4j unavailable")) {
		t.Fatal("transport errors are retryable")
	}
	if retryable(fmt.Errorf("upsert: %w", context.Canceled)) {
		t.Fatal("cancellation is not retryable")
	}
	if retryable(domain.ErrUnknownProduct) {
		t.Fatal("permanent errors are not retryable")
	}
}
