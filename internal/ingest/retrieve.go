package ingest

import (
	"context"
	"time"

	"github.com/CihadCengiz/prompt-generator/internal/observability"
	"github.com/CihadCengiz/prompt-generator/internal/vector"
)

// GetRelevantChunks embeds query and returns the text of the topK most
// similar chunks across the whole index, most similar first. topK <= 0 uses
// DefaultTopK.
func (p *Pipeline) GetRelevantChunks(ctx context.Context, query string, topK int) ([]string, error) {
	matches, err := p.Search(ctx, query, topK, vector.Scope{})
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		texts = append(texts, m.Metadata.Text)
	}
	return texts, nil
}

// Search is GetRelevantChunks with the full matches and an optional scope.
// Empty scope fields are not filtered on.
func (p *Pipeline) Search(ctx context.Context, query string, topK int, scope vector.Scope) (matches []vector.Match, err error) {
	start := time.Now()
	ctx, span := observability.StartOperationSpan(ctx, "retrieve", scope.RepoTag, scope.CommitHash)
	defer func() {
		observability.RecordError(span, err)
		span.End()
		p.observe("retrieve", start, err)
	}()

	if topK <= 0 {
		topK = DefaultTopK
	}

	vectors, err := p.embed(ctx, []string{query})
	if err != nil {
		return nil, wrap(ErrProvider, "retrieve", err)
	}

	var filter vector.Filter
	if f := scope.Filter(); len(f) > 0 {
		filter = f
	}
	matches, err = p.index.Query(ctx, vectors[0], topK, filter)
	if err != nil {
		return nil, wrap(ErrIndex, "retrieve", err)
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	observability.RecordCounts(span, map[string]int{"matches": len(matches)})
	return matches, nil
}
