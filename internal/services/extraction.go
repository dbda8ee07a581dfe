package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/enliterate-io/enliterate/internal/config"
	"github.com/enliterate-io/enliterate/internal/models"
)

// TermProposal is one candidate vocabulary term from the extraction service.
type TermProposal struct {
	SurfaceForm          string   `json:"surface_form"`
	CanonicalTerm        string   `json:"canonical_term"`
	TermType             string   `json:"term_type,omitempty"`
	Description          string   `json:"description,omitempty"`
	NegativeSurfaceForms []string `json:"negative_surface_forms,omitempty"`
	Pool                 string   `json:"pool,omitempty"`
}

// EntityProposal is one candidate pool entity. Key correlates the entity
// with relation endpoints inside the same extraction response; it never
// leaves the pool stage.
type EntityProposal struct {
	Key      string           `json:"key"`
	Pool     models.PoolLabel `json:"pool"`
	ReprText string           `json:"repr_text"`

	Label         string     `json:"label,omitempty"`
	Description   string     `json:"description,omitempty"`
	Type          string     `json:"type,omitempty"`
	Year          *int       `json:"year,omitempty"`
	Name          string     `json:"name,omitempty"`
	AgentLabel    string     `json:"agent_label,omitempty"`
	NarrativeText string     `json:"narrative_text,omitempty"`
	ObservedAt    *time.Time `json:"observed_at,omitempty"`
	RelationType  string     `json:"relation_type,omitempty"`
	InfluenceType string     `json:"influence_type,omitempty"`
	Steps         []string   `json:"steps,omitempty"`
	Version       string     `json:"version,omitempty"`
	Role          string     `json:"role,omitempty"`
	Citation      string     `json:"citation,omitempty"`
	Severity      string     `json:"severity,omitempty"`

	ValidTimeStart *time.Time `json:"valid_time_start,omitempty"`
	ValidTimeEnd   *time.Time `json:"valid_time_end,omitempty"`
}

// RelationProposal is one candidate typed relation between entity proposals
// of the same response, referenced by key.
type RelationProposal struct {
	SourceKey      string     `json:"source_key"`
	TargetKey      string     `json:"target_key"`
	Verb           string     `json:"verb"`
	Strength       float64    `json:"strength,omitempty"`
	ValidTimeStart *time.Time `json:"valid_time_start,omitempty"`
	ValidTimeEnd   *time.Time `json:"valid_time_end,omitempty"`
}

// PoolExtraction is the pool extraction response for one item.
type PoolExtraction struct {
	Entities  []EntityProposal   `json:"entities"`
	Relations []RelationProposal `json:"relations"`
}

// ExtractionService proposes vocabulary terms and pool entities from item
// text. Both operations live on the same service endpoint.
type ExtractionService interface {
	ExtractTerms(ctx context.Context, itemText string, existingTerms []string) ([]TermProposal, error)
	ExtractPools(ctx context.Context, itemText string, lexicon []*models.LexiconEntry) (*PoolExtraction, error)
}

type extractionClient struct {
	*client
}

// NewExtractionService creates the HTTP extraction client.
func NewExtractionService(endpoint config.ServiceEndpoint, logger *slog.Logger) ExtractionService {
	return &extractionClient{client: newClient(endpoint, logger.With(slog.String("service", "extraction")))}
}

type termsRequest struct {
	Text          string   `json:"text"`
	ExistingTerms []string `json:"existing_terms,omitempty"`
}

type termsResponse struct {
	Terms []TermProposal `json:"terms"`
}

func (c *extractionClient) ExtractTerms(ctx context.Context, itemText string, existingTerms []string) ([]TermProposal, error) {
	var out termsResponse
	req := termsRequest{Text: itemText, ExistingTerms: existingTerms}
	if err := c.postJSON(ctx, "/v1/extract/terms", req, &out); err != nil {
		return nil, fmt.Errorf("extracting terms: %w", err)
	}
	return out.Terms, nil
}

type lexiconContext struct {
	CanonicalTerm string   `json:"canonical_term"`
	SurfaceForms  []string `json:"surface_forms,omitempty"`
	Pool          string   `json:"pool,omitempty"`
}

type poolsRequest struct {
	Text    string           `json:"text"`
	Lexicon []lexiconContext `json:"lexicon,omitempty"`
}

func (c *extractionClient) ExtractPools(ctx context.Context, itemText string, lexicon []*models.LexiconEntry) (*PoolExtraction, error) {
	req := poolsRequest{Text: itemText}
	for _, entry := range lexicon {
		req.Lexicon = append(req.Lexicon, lexiconContext{
			CanonicalTerm: entry.CanonicalTerm,
			SurfaceForms:  entry.SurfaceForms,
			Pool:          entry.Pool,
		})
	}
	var out PoolExtraction
	if err := c.postJSON(ctx, "/v1/extract/pools", req, &out); err != nil {
		return nil, fmt.Errorf("extracting pool entities: %w", err)
	}
	return &out, nil
}
