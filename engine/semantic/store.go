package semantic

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Payload fields stored on every point.
const (
	fieldScope    = "scope"
	fieldKey      = "key"
	fieldCategory = "category"
	fieldText     = "text"
)

const scrollPage = 256

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantStore owns all Qdrant operations for phrase embeddings.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
}

// New creates a QdrantStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients builds a store over already constructed clients.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string) *QdrantStore {
	return &QdrantStore{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection.
func (v *QdrantStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (v *QdrantStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// DeleteCollection deletes the collection.
func (v *QdrantStore) DeleteCollection(ctx context.Context) error {
	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: v.collection})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", v.collection, err)
	}
	return nil
}

// Save replaces the phrasings of s.
func (v *QdrantStore) Save(ctx context.Context, s Scope, phrases []Phrase) error {
	if len(phrases) == 0 {
		return nil
	}
	if len(phrases[0].Vector) > 0 {
		if err := v.EnsureCollection(ctx, len(phrases[0].Vector)); err != nil {
			return err
		}
	}
	if err := v.DeleteScope(ctx, s); err != nil {
		return err
	}

	points := make([]*pb.PointStruct, len(phrases))
	for i, p := range phrases {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(s, p)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Vector},
				},
			},
			Payload: map[string]*pb.Value{
				fieldScope:    stringValue(s.String()),
				fieldKey:      stringValue(p.Key),
				fieldCategory: stringValue(p.Category),
				fieldText:     stringValue(p.Text),
			},
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(points), err)
	}
	return nil
}

// Load scrolls every phrasing stored for s.
func (v *QdrantStore) Load(ctx context.Context, s Scope) ([]Phrase, error) {
	var (
		out    []Phrase
		offset *pb.PointId
	)
	limit := uint32(scrollPage)
	for {
		resp, err := v.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: v.collection,
			Filter:         &pb.Filter{Must: []*pb.Condition{fieldMatch(fieldScope, s.String())}},
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
			WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, fmt.Errorf("semantic: scroll %s: %w", s, err)
		}
		for _, p := range resp.GetResult() {
			payload := p.GetPayload()
			out = append(out, Phrase{
				Key:      payload[fieldKey].GetStringValue(),
				Category: payload[fieldCategory].GetStringValue(),
				Text:     payload[fieldText].GetStringValue(),
				Vector:   p.GetVectors().GetVector().GetData(),
			})
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			return out, nil
		}
	}
}

// DeleteScope removes every point of s.
func (v *QdrantStore) DeleteScope(ctx context.Context, s Scope) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{fieldMatch(fieldScope, s.String())},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete scope %s: %w", s, err)
	}
	return nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
