package semantic

import (
	"context"
	"fmt"
	"time"

	"github.com/clausemind/clausemind/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// deleteScrollPage bounds how many point ids one scroll request collects
// during a filtered delete.
const deleteScrollPage = 1000

// defaultCallTimeout bounds every Qdrant call. A stalled backend must
// surface as an UpstreamError, not a hang.
const defaultCallTimeout = 30 * time.Second

// Qdrant is the managed-cloud Index backend. It is the sole owner of all
// Qdrant operations; write serialization is the backend's concern.
type Qdrant struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dim         int
	timeout     time.Duration
}

// NewQdrant dials Qdrant and ensures the named collection exists with the
// given dimension. Creation is idempotent: an existing collection with a
// matching dimension is reused; a mismatched dimension is a fatal
// configuration error surfaced before any upsert or search.
func NewQdrant(ctx context.Context, addr, collection string, dim int) (*Qdrant, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("semantic: dimension must be positive, got %d", dim)
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	q := &Qdrant{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dim:         dim,
		timeout:     defaultCallTimeout,
	}
	if err := q.ensureCollection(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

// Close closes the underlying gRPC connection.
func (q *Qdrant) Close() error { return q.conn.Close() }

// opCtx attaches the per-call deadline to the caller's context.
func (q *Qdrant) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, q.timeout)
}

func (q *Qdrant) ensureCollection(ctx context.Context) error {
	ctx, cancel := q.opCtx(ctx)
	defer cancel()

	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() != q.collection {
			continue
		}
		info, err := q.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: q.collection})
		if err != nil {
			return fmt.Errorf("semantic: get collection %s: %w", q.collection, err)
		}
		got := int(info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
		if got != q.dim {
			return &domain.DimensionMismatchError{Index: q.collection, Want: q.dim, Got: got}
		}
		return nil
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(q.dim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", q.collection, err)
	}
	return nil
}

// Upsert implements Index.
func (q *Qdrant) Upsert(ctx context.Context, records []domain.IndexedRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		if len(r.Vector) != q.dim {
			return &domain.DimensionMismatchError{Index: q.collection, Want: q.dim, Got: len(r.Vector)}
		}
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Vector},
				},
			},
			Payload: map[string]*pb.Value{
				FieldText:       {Kind: &pb.Value_StringValue{StringValue: r.Text}},
				FieldSourceID:   {Kind: &pb.Value_StringValue{StringValue: r.Meta.SourceID}},
				FieldChunkIndex: {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.Meta.ChunkIndex)}},
				FieldFileID:     {Kind: &pb.Value_StringValue{StringValue: r.Meta.FileID}},
				FieldFilename:   {Kind: &pb.Value_StringValue{StringValue: r.Meta.Filename}},
			},
		}
	}

	callCtx, cancel := q.opCtx(ctx)
	defer cancel()
	wait := true
	_, err := q.points.Upsert(callCtx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return &domain.UpstreamError{Op: "upsert", Err: err}
	}
	return nil
}

// Search implements Index. The filter maps to exact-match keyword
// conditions on the point payload.
func (q *Qdrant) Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]domain.RetrievedMatch, error) {
	req := &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if f := buildFilter(filter); f != nil {
		req.Filter = f
	}

	callCtx, cancel := q.opCtx(ctx)
	defer cancel()
	resp, err := q.points.Search(callCtx, req)
	if err != nil {
		return nil, &domain.UpstreamError{Op: "search", Err: err}
	}

	matches := make([]domain.RetrievedMatch, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		payload := r.GetPayload()
		matches[i] = domain.RetrievedMatch{
			Text:  payload[FieldText].GetStringValue(),
			Score: r.GetScore(),
			Meta: domain.Metadata{
				SourceID:   payload[FieldSourceID].GetStringValue(),
				ChunkIndex: int(payload[FieldChunkIndex].GetIntegerValue()),
				FileID:     payload[FieldFileID].GetStringValue(),
				Filename:   payload[FieldFilename].GetStringValue(),
			},
		}
	}
	return matches, nil
}

// DeleteByFileID implements Index as filter-then-bulk-delete: scroll the
// matching point ids, then delete them by id. Returns whether any point
// was removed.
func (q *Qdrant) DeleteByFileID(ctx context.Context, fileID string) (bool, error) {
	filter := buildFilter(map[string]string{FieldFileID: fileID})
	var ids []*pb.PointId
	var offset *pb.PointId

	for {
		limit := uint32(deleteScrollPage)
		scrollCtx, cancel := q.opCtx(ctx)
		resp, err := q.points.Scroll(scrollCtx, &pb.ScrollPoints{
			CollectionName: q.collection,
			Filter:         filter,
			Limit:          &limit,
			Offset:         offset,
		})
		cancel()
		if err != nil {
			return false, &domain.UpstreamError{Op: "scroll", Err: err}
		}
		for _, p := range resp.GetResult() {
			ids = append(ids, p.GetId())
		}
		offset = resp.GetNextPageOffset()
		if offset == nil || len(resp.GetResult()) == 0 {
			break
		}
	}

	if len(ids) == 0 {
		return false, nil
	}

	callCtx, cancel := q.opCtx(ctx)
	defer cancel()
	wait := true
	_, err := q.points.Delete(callCtx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: ids},
			},
		},
	})
	if err != nil {
		return false, &domain.UpstreamError{Op: "delete", Err: err}
	}
	return true, nil
}

// Count implements Index.
func (q *Qdrant) Count(ctx context.Context) (int, error) {
	ctx, cancel := q.opCtx(ctx)
	defer cancel()

	exact := true
	resp, err := q.points.Count(ctx, &pb.CountPoints{
		CollectionName: q.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, &domain.UpstreamError{Op: "count", Err: err}
	}
	return int(resp.GetResult().GetCount()), nil
}

// Stats implements Index.
func (q *Qdrant) Stats(ctx context.Context) (map[string]any, error) {
	ctx, cancel := q.opCtx(ctx)
	defer cancel()

	info, err := q.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: q.collection})
	if err != nil {
		return nil, &domain.UpstreamError{Op: "stats", Err: err}
	}
	res := info.GetResult()
	return map[string]any{
		"backend":      "qdrant",
		"collection":   q.collection,
		"status":       res.GetStatus().String(),
		"points_count": res.GetPointsCount(),
		"dimension":    q.dim,
	}, nil
}

func buildFilter(filter map[string]string) *pb.Filter {
	if len(filter) == 0 {
		return nil
	}
	must := make([]*pb.Condition, 0, len(filter))
	for k, v := range filter {
		must = append(must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: k,
					Match: &pb.Match{
						MatchValue: &pb.Match_Keyword{Keyword: v},
					},
				},
			},
		})
	}
	return &pb.Filter{Must: must}
}
