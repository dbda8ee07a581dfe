package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/enliterate-io/enliterate/internal/config"
	"github.com/enliterate-io/enliterate/internal/models"
)

// RightsInference is the rights service's verdict on one item.
type RightsInference struct {
	Confidence    float64              `json:"confidence"`
	LicenseType   models.LicenseType   `json:"license_type"`
	ConsentStatus models.ConsentStatus `json:"consent_status"`
	Publishable   bool                 `json:"publishable"`
	Trainable     bool                 `json:"trainable"`
	SourceType    string               `json:"source_type"`
	Method        string               `json:"method"`
}

// RightsService infers license, consent, and usage rights for an item.
type RightsService interface {
	Infer(ctx context.Context, item *models.IngestItem) (*RightsInference, error)
}

type rightsClient struct {
	*client
}

// NewRightsService creates the HTTP rights inference client.
func NewRightsService(endpoint config.ServiceEndpoint, logger *slog.Logger) RightsService {
	return &rightsClient{client: newClient(endpoint, logger.With(slog.String("service", "rights")))}
}

type rightsRequest struct {
	ContentSample string `json:"content_sample"`
	MIMEType      string `json:"mime_type"`
	Source        string `json:"source,omitempty"`
}

func (c *rightsClient) Infer(ctx context.Context, item *models.IngestItem) (*RightsInference, error) {
	var out RightsInference
	req := rightsRequest{
		ContentSample: item.ContentSample,
		MIMEType:      item.MIMEType,
		Source:        item.SourcePath,
	}
	if err := c.postJSON(ctx, "/v1/rights/infer", req, &out); err != nil {
		return nil, fmt.Errorf("inferring rights for item %s: %w", item.ID, err)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %f outside [0,1]", ErrRejected, out.Confidence)
	}
	return &out, nil
}
