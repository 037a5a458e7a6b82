package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore is the production Store backed by Qdrant's gRPC API, grounded
// on the teacher's gcpclient adapters: a thin struct wrapping a generated
// client, translating domain types at the boundary and never leaking the
// wire types past this file.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore dials the Qdrant gRPC endpoint at host:port.
func NewQdrantStore(host string, port int, apiKey string, useTLS bool) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: dial qdrant: %w", err)
	}
	return &QdrantStore{client: client}, nil
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, vectors []VectorSpec, indexes []PayloadIndexSpec) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return newErr("EnsureCollection", ErrUnavailable, err)
	}
	if exists {
		return nil
	}

	vecParams := make(map[string]*qdrant.VectorParams, len(vectors))
	for _, v := range vectors {
		vecParams[v.Name] = &qdrant.VectorParams{
			Size:     uint64(v.Dim),
			Distance: qdrant.Distance_Cosine,
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig:  qdrant.NewVectorsConfigMap(vecParams),
		SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			"text_bm25": {},
		}),
	})
	if err != nil {
		return newErr("EnsureCollection", ErrSchemaMismatch, err)
	}

	for _, idx := range indexes {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      idx.Field,
			FieldType:      payloadFieldKindToQdrant(idx.Kind),
		})
		if err != nil {
			return newErr("EnsureCollection", ErrSchemaMismatch, err)
		}
	}
	return nil
}

func payloadFieldKindToQdrant(k PayloadFieldKind) *qdrant.FieldType {
	var ft qdrant.FieldType
	switch k {
	case FieldKeyword:
		ft = qdrant.FieldType_FieldTypeKeyword
	case FieldFloat:
		ft = qdrant.FieldType_FieldTypeFloat
	case FieldInt:
		ft = qdrant.FieldType_FieldTypeInteger
	case FieldBool:
		ft = qdrant.FieldType_FieldTypeBool
	case FieldDatetime:
		ft = qdrant.FieldType_FieldTypeDatetime
	default:
		ft = qdrant.FieldType_FieldTypeKeyword
	}
	return ft.Enum()
}

func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	wire := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		vectors := make(map[string]*qdrant.Vector, len(p.Vectors)+len(p.Sparse))
		for name, v := range p.Vectors {
			vectors[name] = qdrant.NewVector(v...)
		}
		for name, sv := range p.Sparse {
			vectors[name] = qdrant.NewVectorSparse(sv.Indices, sv.Values)
		}
		wire = append(wire, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectorsMap(vectors),
			Payload: qdrant.NewValueMap(p.Payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         wire,
	})
	if err != nil {
		return newErr("Upsert", ErrUnavailable, err)
	}
	return nil
}

func (s *QdrantStore) Query(ctx context.Context, collection string, req QueryRequest) ([]ScoredPoint, error) {
	limit := uint64(req.Limit)
	result, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(req.DenseVector...),
		Using:          qdrant.PtrOf(req.Using),
		Filter:         filterToQdrant(req.Filter),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, newErr("Query", ErrUnavailable, err)
	}
	return scoredPointsFromQdrant(result), nil
}

func (s *QdrantStore) SparseQuery(ctx context.Context, collection string, req QueryRequest) ([]ScoredPoint, error) {
	limit := uint64(req.Limit)
	result, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuerySparse(req.SparseTerms.Indices, req.SparseTerms.Values),
		Using:          qdrant.PtrOf(req.Using),
		Filter:         filterToQdrant(req.Filter),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, newErr("SparseQuery", ErrUnavailable, err)
	}
	return scoredPointsFromQdrant(result), nil
}

func (s *QdrantStore) Scroll(ctx context.Context, collection string, filter Filter, cursor ScrollCursor, batch int) (ScrollPage, error) {
	req := &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         filterToQdrant(filter),
		Limit:          qdrant.PtrOf(uint32(batch)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if cursor != "" {
		req.Offset = qdrant.NewID(string(cursor))
	}

	result, err := s.client.Scroll(ctx, req)
	if err != nil {
		return ScrollPage{}, newErr("Scroll", ErrUnavailable, err)
	}

	var page ScrollPage
	for _, p := range result {
		page.Points = append(page.Points, ScoredPoint{
			ID:      idFromQdrant(p.Id),
			Payload: payloadFromQdrant(p.Payload),
		})
	}
	if len(page.Points) == batch && len(page.Points) > 0 {
		page.NextCursor = ScrollCursor(page.Points[len(page.Points)-1].ID)
	}
	return page, nil
}

func (s *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	wireIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		wireIDs[i] = qdrant.NewID(id)
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorIDs(wireIDs),
	})
	if err != nil {
		return newErr("Delete", ErrUnavailable, err)
	}
	return nil
}

func (s *QdrantStore) SetPayload(ctx context.Context, collection string, id string, patch map[string]any) error {
	_, err := s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: collection,
		Payload:        qdrant.NewValueMap(patch),
		PointsSelector: qdrant.NewPointsSelectorIDs([]*qdrant.PointId{qdrant.NewID(id)}),
	})
	if err != nil {
		return newErr("SetPayload", ErrUnavailable, err)
	}
	return nil
}

func (s *QdrantStore) Ping(ctx context.Context) error {
	_, err := s.client.HealthCheck(ctx)
	if err != nil {
		return newErr("Ping", ErrUnavailable, err)
	}
	return nil
}

func filterToQdrant(f Filter) *qdrant.Filter {
	if f.IsEmpty() {
		return nil
	}
	out := &qdrant.Filter{}
	for _, c := range f.Conditions {
		out.Must = append(out.Must, conditionToQdrant(c))
	}
	for _, sub := range f.Must {
		if qf := filterToQdrant(sub); qf != nil {
			out.Must = append(out.Must, qdrant.NewFilterAsCondition(qf))
		}
	}
	for _, sub := range f.Should {
		if qf := filterToQdrant(sub); qf != nil {
			out.Should = append(out.Should, qdrant.NewFilterAsCondition(qf))
		}
	}
	return out
}

func conditionToQdrant(c Condition) *qdrant.Condition {
	switch c.Op {
	case OpEquals:
		return qdrant.NewMatch(c.Field, c.Value)
	case OpIn:
		items, _ := c.Value.([]string)
		return qdrant.NewMatchKeywords(c.Field, items...)
	case OpGTE:
		return qdrant.NewRange(c.Field, &qdrant.Range{Gte: qdrant.PtrOf(compareFloat(c.Value))})
	case OpLTE:
		return qdrant.NewRange(c.Field, &qdrant.Range{Lte: qdrant.PtrOf(compareFloat(c.Value))})
	default:
		return nil
	}
}

func scoredPointsFromQdrant(result []*qdrant.ScoredPoint) []ScoredPoint {
	out := make([]ScoredPoint, 0, len(result))
	for _, p := range result {
		out = append(out, ScoredPoint{
			ID:      idFromQdrant(p.Id),
			Score:   float64(p.Score),
			Payload: payloadFromQdrant(p.Payload),
		})
	}
	return out
}

func idFromQdrant(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	default:
		return ""
	}
}

func payloadFromQdrant(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v.AsInterface()
	}
	return out
}
