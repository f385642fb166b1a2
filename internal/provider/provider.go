package provider

import (
	"context"

	"github.com/schilling3003/Perplexica/internal/models"
)

// Provider fetches documents for a query from one engine. Every returned
// document has Metadata.Engine set to Name().
type Provider interface {
	Name() string
	Fetch(ctx context.Context, query string) ([]models.Document, error)
}

// Result is the outcome of one provider call in a fan-out.
type Result struct {
	Engine    string
	Documents []models.Document
	Err       error
}

func tagEngine(docs []models.Document, engine string) []models.Document {
	for i := range docs {
		docs[i].Metadata.Engine = engine
	}
	return docs
}
