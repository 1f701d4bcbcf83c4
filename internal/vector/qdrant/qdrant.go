package qdrant

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/CihadCengiz/prompt-generator/internal/vector"
)

// scrollPage bounds a single Scroll round trip.
const scrollPage = 256

// Index implements vector.Index and vector.Lister on a Qdrant collection.
type Index struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	service     pb.QdrantClient
	collection  string
}

// New connects to Qdrant's gRPC port.
func New(ctx context.Context, host string, port int, collection string) (*Index, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Index{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		service:     pb.NewQdrantClient(conn),
		collection:  collection,
	}, nil
}

// EnsureCollection creates the collection with cosine distance if it does not exist.
func (x *Index) EnsureCollection(ctx context.Context, dimension int) error {
	resp, err := x.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: x.collection})
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if resp.GetResult().GetExists() {
		return nil
	}
	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
			Size:     uint64(dimension),
			Distance: pb.Distance_Cosine,
		}}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", x.collection, err)
	}
	return nil
}

func (x *Index) Upsert(ctx context.Context, records []vector.Record) error {
	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = pointFromRecord(r)
	}

	wait := true
	_, err := x.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: x.collection,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (x *Index) Query(ctx context.Context, vec []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	resp, err := x.points.Search(ctx, &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		Filter:         buildFilter(filter),
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	matches := make([]vector.Match, len(resp.Result))
	for i, pt := range resp.Result {
		matches[i] = vector.Match{
			ID:       pt.Id.GetUuid(),
			Score:    pt.Score,
			Metadata: metadataFromPayload(pt.Payload),
		}
	}
	return matches, nil
}

// List pages through Scroll until limit matches are collected or the
// collection is exhausted.
func (x *Index) List(ctx context.Context, filter vector.Filter, limit int) ([]vector.Match, error) {
	var (
		out    []vector.Match
		offset *pb.PointId
	)
	for {
		page := uint32(scrollPage)
		if limit > 0 && limit-len(out) < scrollPage {
			page = uint32(limit - len(out))
		}
		resp, err := x.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: x.collection,
			Filter:         buildFilter(filter),
			Limit:          &page,
			Offset:         offset,
			WithPayload:    withPayload(),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant scroll: %w", err)
		}
		for _, pt := range resp.Result {
			out = append(out, vector.Match{ID: pt.Id.GetUuid(), Metadata: metadataFromPayload(pt.Payload)})
		}
		offset = resp.NextPageOffset
		if offset == nil || len(resp.Result) == 0 || (limit > 0 && len(out) >= limit) {
			return out, nil
		}
	}
}

func (x *Index) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
	}

	wait := true
	_, err := x.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: x.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Points{
			Points: &pb.PointsIdsList{Ids: pointIDs},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant delete: %w", err)
	}
	return nil
}

// Ping calls Qdrant's health check endpoint.
func (x *Index) Ping(ctx context.Context) error {
	if _, err := x.service.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("qdrant health: %w", err)
	}
	return nil
}

func (x *Index) Close() error {
	return x.conn.Close()
}

func withPayload() *pb.WithPayloadSelector {
	return &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
}

// buildFilter turns exact-match conditions into a Qdrant "must" filter on
// keyword payload fields. A nil result means no filtering.
func buildFilter(f vector.Filter) *pb.Filter {
	if len(f) == 0 {
		return nil
	}
	must := make([]*pb.Condition, 0, len(f))
	for _, k := range sortedKeys(f) {
		must = append(must, &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
			Key:   k,
			Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: f[k]}},
		}}})
	}
	return &pb.Filter{Must: must}
}

func pointFromRecord(r vector.Record) *pb.PointStruct {
	payload := make(map[string]*pb.Value)
	for k, v := range r.Metadata.Map() {
		payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	return &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: r.Vector}}},
		Payload: payload,
	}
}

func metadataFromPayload(payload map[string]*pb.Value) vector.Metadata {
	kv := make(map[string]string, len(payload))
	for k, v := range payload {
		kv[k] = v.GetStringValue()
	}
	return vector.MetadataFromMap(kv)
}

var (
	_ vector.Index  = (*Index)(nil)
	_ vector.Lister = (*Index)(nil)
)
