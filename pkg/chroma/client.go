package chroma

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/hykura/mailmind/pkg/config"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/ollama"
)

// Client wraps a Chroma collection holding one vector record per indexed
// email. Documents are keyed by email id, so writes are idempotent.
type Client struct {
	config     *config.Config
	collection chroma.Collection
}

// Stats describes the index for the diagnostics endpoint.
type Stats struct {
	IndexedCount int    `json:"indexed_count"`
	EmbedModel   string `json:"embed_model"`
	Collection   string `json:"collection"`
	StorageURL   string `json:"storage_url"`
}

func NewClient(cfg *config.Config) (*Client, error) {
	// Embeddings come from the local Ollama server; dimensionality is fixed
	// by the configured model.
	embedFunc, err := ollama.NewOllamaEmbeddingFunction(
		ollama.WithBaseURL(cfg.OllamaBaseURL),
		ollama.WithModel(embeddings.EmbeddingModel(cfg.EmbedModel)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama embedding function: %w", err)
	}

	client, err := chroma.NewHTTPClient(
		chroma.WithBaseURL(cfg.ChromaURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	ctx := context.Background()
	collection, err := client.GetOrCreateCollection(
		ctx,
		cfg.ChromaCollection,
		chroma.WithEmbeddingFunctionCreate(embedFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	log.Printf("[Chroma] Initialized client with collection: %s", cfg.ChromaCollection)

	return &Client{
		config:     cfg,
		collection: collection,
	}, nil
}

// Upsert writes one record for the email id, overwriting any previous one.
func (c *Client) Upsert(ctx context.Context, id, document, source, category string) error {
	if len(document) > 10000 {
		// Embedding models have input limits
		document = document[:10000]
	}

	metadata, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
		"email_id": id,
		"source":   source,
		"category": category,
	})
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}

	err = c.collection.Upsert(
		ctx,
		chroma.WithIDs(chroma.DocumentID(id)),
		chroma.WithMetadatas(metadata),
		chroma.WithTexts(document),
	)
	if err != nil {
		return wrapWriteError(err)
	}

	return nil
}

// Query returns up to k email ids ordered by ascending distance, restricted
// to one source.
func (c *Client) Query(ctx context.Context, query string, k int, source string) ([]string, []float64, error) {
	where := chroma.EqString("source", source)

	results, err := c.collection.Query(
		ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(k),
		chroma.WithWhereQuery(where),
	)
	if err != nil {
		return nil, nil, wrapWriteError(err)
	}

	if results == nil || results.CountGroups() == 0 {
		return []string{}, []float64{}, nil
	}

	idGroups := results.GetIDGroups()
	distanceGroups := results.GetDistancesGroups()
	if len(idGroups) == 0 || len(idGroups[0]) == 0 {
		return []string{}, []float64{}, nil
	}

	ids := make([]string, 0, len(idGroups[0]))
	for _, id := range idGroups[0] {
		ids = append(ids, string(id))
	}

	distances := make([]float64, 0, len(ids))
	if len(distanceGroups) > 0 {
		for _, d := range distanceGroups[0] {
			distances = append(distances, float64(d))
		}
	}

	return ids, distances, nil
}

// DeleteSource removes every record belonging to one corpus. Used when the
// active corpus switches.
func (c *Client) DeleteSource(ctx context.Context, source string) error {
	err := c.collection.Delete(
		ctx,
		chroma.WithWhereDelete(chroma.EqString("source", source)),
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s entries: %w", source, err)
	}
	return nil
}

// DeleteIDs removes the records for specific email ids.
func (c *Client) DeleteIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	docIDs := make([]chroma.DocumentID, len(ids))
	for i, id := range ids {
		docIDs[i] = chroma.DocumentID(id)
	}
	err := c.collection.Delete(ctx, chroma.WithIDsDelete(docIDs...))
	if err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}
	return nil
}

func (c *Client) Count(ctx context.Context) (int, error) {
	count, err := c.collection.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count collection: %w", err)
	}
	return count, nil
}

func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	count, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		IndexedCount: count,
		EmbedModel:   c.config.EmbedModel,
		Collection:   c.config.ChromaCollection,
		StorageURL:   c.config.ChromaURL,
	}, nil
}

// wrapWriteError promotes embedding dimension mismatches to a distinct
// configuration error; they mean the collection was built with a different
// embedding model and must never be coerced.
func wrapWriteError(err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "dimension") {
		return fmt.Errorf("embedding dimension mismatch, collection was built with a different embed model: %w", err)
	}
	return err
}
