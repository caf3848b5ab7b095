package rag

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// VectorIndex is the optional ANN-backed Retriever path: a Milvus
// collection holding the same chunk identity the Postgres scan path
// returns, so a corpus too large for an in-process cosine scan can swap to
// an approximate index behind the same Retriever interface.
type VectorIndex struct {
	cli        client.Client
	collection string
	dimension  int
}

// NewVectorIndex connects to a Milvus instance at address and prepares
// collection for the given embedding dimension, creating it if absent.
func NewVectorIndex(ctx context.Context, address, collection string, dimension int) (*VectorIndex, error) {
	cli, err := client.NewClient(ctx, client.Config{Address: address})
	if err != nil {
		return nil, NewStoreError("connect to milvus", err)
	}

	v := &VectorIndex{cli: cli, collection: collection, dimension: dimension}
	if err := v.ensureCollection(ctx); err != nil {
		cli.Close()
		return nil, err
	}
	return v, nil
}

func (v *VectorIndex) ensureCollection(ctx context.Context) error {
	exists, err := v.cli.HasCollection(ctx, v.collection)
	if err != nil {
		return NewStoreError("check milvus collection", err)
	}
	if exists {
		return v.cli.LoadCollection(ctx, v.collection, false)
	}

	schema := entity.NewSchema().WithName(v.collection).WithDescription("onboarding document chunks")
	schema.WithField(entity.NewField().WithName("chunk_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true))
	schema.WithField(entity.NewField().WithName("document_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64))
	schema.WithField(entity.NewField().WithName("chunk_index").WithDataType(entity.FieldTypeInt64))
	schema.WithField(entity.NewField().WithName("content").WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535))
	schema.WithField(entity.NewField().WithName("embedding").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(v.dimension)))

	if err := v.cli.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return NewStoreError("create milvus collection", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, 16, 200)
	if err != nil {
		return NewStoreError("build milvus index spec", err)
	}
	if err := v.cli.CreateIndex(ctx, v.collection, "embedding", idx, false); err != nil {
		return NewStoreError("create milvus index", err)
	}
	return v.cli.LoadCollection(ctx, v.collection, false)
}

// Close releases the underlying Milvus connection.
func (v *VectorIndex) Close() error {
	return v.cli.Close()
}

// Upsert inserts a batch of chunks into the collection. Callers are
// responsible for deleting stale entries on reprocess (parity with the
// Store's ReplaceChunks semantics).
func (v *VectorIndex) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	docIDs := make([]string, len(chunks))
	indices := make([]int64, len(chunks))
	contents := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))

	for i, c := range chunks {
		ids[i] = c.ID
		docIDs[i] = c.DocumentID
		indices[i] = int64(c.Index)
		contents[i] = c.Text
		vectors[i] = toFloat32Vector(c.Embedding)
	}

	_, err := v.cli.Insert(ctx, v.collection, "",
		entity.NewColumnVarChar("chunk_id", ids),
		entity.NewColumnVarChar("document_id", docIDs),
		entity.NewColumnInt64("chunk_index", indices),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnFloatVector("embedding", v.dimension, vectors),
	)
	if err != nil {
		return NewStoreError("insert into milvus", err)
	}
	return v.cli.Flush(ctx, v.collection, false)
}

// DeleteDocument removes every chunk belonging to documentID.
func (v *VectorIndex) DeleteDocument(ctx context.Context, documentID string) error {
	expr := fmt.Sprintf("document_id == \"%s\"", documentID)
	return v.cli.Delete(ctx, v.collection, "", expr)
}

// Search runs an ANN search for queryVec and maps results into
// RetrievalSources, applying the same minScore filter the scan path uses.
// Document title/type are not denormalized in Milvus, so callers that need
// them must resolve via the Store; the retriever leaves those fields blank
// here rather than performing a second round-trip.
func (v *VectorIndex) Search(ctx context.Context, queryVec []float64, topK int, minScore float64) ([]RetrievalSource, error) {
	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, NewStoreError("build milvus search param", err)
	}

	results, err := v.cli.Search(ctx, v.collection, nil, "", []string{"document_id", "chunk_index", "content"},
		[]entity.Vector{entity.FloatVector(toFloat32Vector(queryVec))}, "embedding", entity.COSINE, topK, sp)
	if err != nil {
		return nil, NewStoreError("milvus search", err)
	}

	var out []RetrievalSource
	for _, r := range results {
		for i := 0; i < r.ResultCount; i++ {
			score := float64(r.Scores[i])
			if score < minScore {
				continue
			}
			id, _ := r.IDs.GetAsString(i)
			source := RetrievalSource{ChunkID: id, RelevanceScore: score}
			if col := r.Fields.GetColumn("document_id"); col != nil {
				if val, err := col.GetAsString(i); err == nil {
					source.DocumentID = val
				}
			}
			if col := r.Fields.GetColumn("content"); col != nil {
				if val, err := col.GetAsString(i); err == nil {
					source.ChunkText = val
				}
			}
			if col := r.Fields.GetColumn("chunk_index"); col != nil {
				if val, err := col.GetAsInt64(i); err == nil {
					source.ChunkIndex = int(val)
				}
			}
			out = append(out, source)
		}
	}
	return out, nil
}

func toFloat32Vector(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
