package semantic

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// --- Mocks ---

type mockPoints struct {
	upserted  *pb.UpsertPoints
	upsertErr error
	deleted   *pb.DeletePoints
	deleteErr error
	pages     []*pb.ScrollResponse
	scrolls   []*pb.ScrollPoints
	scrollErr error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upserted = in
	return &pb.PointsOperationResponse{}, m.upsertErr
}
func (m *mockPoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.deleted = in
	return &pb.PointsOperationResponse{}, m.deleteErr
}
func (m *mockPoints) Scroll(_ context.Context, in *pb.ScrollPoints, _ ...grpc.CallOption) (*pb.ScrollResponse, error) {
	if m.scrollErr != nil {
		return nil, m.scrollErr
	}
	m.scrolls = append(m.scrolls, in)
	if len(m.pages) == 0 {
		return &pb.ScrollResponse{}, nil
	}
	page := m.pages[0]
	m.pages = m.pages[1:]
	return page, nil
}

type mockCollections struct {
	listResp  *pb.ListCollectionsResponse
	listErr   error
	created   *pb.CreateCollection
	createErr error
	deleteErr error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}
func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = in
	return &pb.CollectionOperationResponse{Result: true}, m.createErr
}
func (m *mockCollections) Delete(_ context.Context, _ *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return &pb.CollectionOperationResponse{Result: true}, m.deleteErr
}

var testScope = Scope{Product: "washing machine", SubProduct: "", Section: "troubleshooting"}

func retrieved(key, category, text string, vec []float32) *pb.RetrievedPoint {
	return &pb.RetrievedPoint{
		Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: key}},
		Payload: map[string]*pb.Value{
			fieldScope:    stringValue(testScope.String()),
			fieldKey:      stringValue(key),
			fieldCategory: stringValue(category),
			fieldText:     stringValue(text),
		},
		Vectors: &pb.VectorsOutput{
			VectorsOptions: &pb.VectorsOutput_Vector{Vector: &pb.VectorOutput{Data: vec}},
		},
	}
}

// --- Tests ---

func TestNewWithClients(t *testing.T) {
	vs := NewWithClients(&mockPoints{}, &mockCollections{}, "test")
	if vs == nil {
		t.Fatal("expected non-nil")
	}
	if err := vs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestScopeKey(t *testing.T) {
	if got := testScope.Key("UE"); got != "washing machine||troubleshooting|UE" {
		t.Fatalf("Key = %q", got)
	}
	a := PointID(testScope, Phrase{Key: "UE", Text: "ue error"})
	b := PointID(testScope, Phrase{Key: "UE", Text: "ue error"})
	c := PointID(testScope, Phrase{Key: "UE", Text: "ue code"})
	if a != b || a == c {
		t.Fatalf("point ids not deterministic: %s %s %s", a, b, c)
	}
}

func TestEnsureCollection_AlreadyExists(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{
			Collections: []*pb.CollectionDescription{{Name: "test"}},
		},
	}
	vs := NewWithClients(&mockPoints{}, cols, "test")
	if err := vs.EnsureCollection(context.Background(), 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.created != nil {
		t.Fatal("collection should not be recreated")
	}
}

func TestEnsureCollection_Creates(t *testing.T) {
	cols := &mockCollections{listResp: &pb.ListCollectionsResponse{}}
	vs := NewWithClients(&mockPoints{}, cols, "test")
	if err := vs.EnsureCollection(context.Background(), 128); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.created.GetVectorsConfig().GetParams().GetSize() != 128 {
		t.Fatalf("created = %v", cols.created)
	}
}

func TestEnsureCollection_Errors(t *testing.T) {
	for name, cols := range map[string]*mockCollections{
		"list":   {listErr: errors.New("rpc fail")},
		"create": {listResp: &pb.ListCollectionsResponse{}, createErr: errors.New("create fail")},
	} {
		vs := NewWithClients(&mockPoints{}, cols, "test")
		if err := vs.EnsureCollection(context.Background(), 4); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDeleteCollection(t *testing.T) {
	vs := NewWithClients(&mockPoints{}, &mockCollections{}, "test")
	if err := vs.DeleteCollection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vs = NewWithClients(&mockPoints{}, &mockCollections{deleteErr: errors.New("fail")}, "test")
	if err := vs.DeleteCollection(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSave(t *testing.T) {
	pts := &mockPoints{}
	cols := &mockCollections{listResp: &pb.ListCollectionsResponse{}}
	vs := NewWithClients(pts, cols, "phrases")

	phrases := []Phrase{
		{Key: "UE", Category: "Error Messages", Text: "ue error", Vector: []float32{1, 0}},
		{Key: "IE", Category: "Error Messages", Text: "ie error", Vector: []float32{0, 1}},
	}
	if err := vs.Save(context.Background(), testScope, phrases); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if cols.created == nil {
		t.Fatal("collection not ensured")
	}
	if pts.deleted == nil {
		t.Fatal("scope not cleared before upsert")
	}
	if n := len(pts.upserted.GetPoints()); n != 2 {
		t.Fatalf("upserted %d points", n)
	}
	p := pts.upserted.GetPoints()[1]
	if p.GetId().GetUuid() != PointID(testScope, phrases[1]) {
		t.Fatalf("id = %s", p.GetId().GetUuid())
	}
	if p.GetPayload()[fieldScope].GetStringValue() != testScope.String() {
		t.Fatalf("payload = %v", p.GetPayload())
	}
}

func TestSave_Empty(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{}, "test")
	if err := vs.Save(context.Background(), testScope, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pts.upserted != nil {
		t.Fatal("nothing should be upserted")
	}
}

func TestSave_Errors(t *testing.T) {
	cols := &mockCollections{listResp: &pb.ListCollectionsResponse{Collections: []*pb.CollectionDescription{{Name: "test"}}}}
	phrases := []Phrase{{Key: "UE", Text: "ue", Vector: []float32{1}}}

	vs := NewWithClients(&mockPoints{deleteErr: errors.New("fail")}, cols, "test")
	if err := vs.Save(context.Background(), testScope, phrases); err == nil {
		t.Fatal("expected delete error")
	}
	vs = NewWithClients(&mockPoints{upsertErr: errors.New("fail")}, cols, "test")
	if err := vs.Save(context.Background(), testScope, phrases); err == nil {
		t.Fatal("expected upsert error")
	}
}

func TestLoad_Pages(t *testing.T) {
	next := &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "next"}}
	pts := &mockPoints{pages: []*pb.ScrollResponse{
		{Result: []*pb.RetrievedPoint{retrieved("UE", "Error Messages", "ue error", []float32{1, 0})}, NextPageOffset: next},
		{Result: []*pb.RetrievedPoint{retrieved("IE", "Error Messages", "ie error", []float32{0, 1})}},
	}}
	vs := NewWithClients(pts, &mockCollections{}, "test")

	got, err := vs.Load(context.Background(), testScope)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[1].Key != "IE" || got[1].Text != "ie error" || got[1].Vector[1] != 1 {
		t.Fatalf("got %+v", got)
	}
	if len(pts.scrolls) != 2 || pts.scrolls[1].GetOffset().GetUuid() != "next" {
		t.Fatalf("scrolls = %v", pts.scrolls)
	}
}

func TestLoad_Error(t *testing.T) {
	vs := NewWithClients(&mockPoints{scrollErr: errors.New("fail")}, &mockCollections{}, "test")
	if _, err := vs.Load(context.Background(), testScope); err == nil {
		t.Fatal("expected error")
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	if got, _ := m.Load(ctx, testScope); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
	in := []Phrase{{Key: "UE", Text: "ue"}}
	if err := m.Save(ctx, testScope, in); err != nil {
		t.Fatal(err)
	}
	in[0].Key = "mutated"
	got, _ := m.Load(ctx, testScope)
	if len(got) != 1 || got[0].Key != "UE" {
		t.Fatalf("got %v", got)
	}
}
