// Package extract implements the LLM-backed extraction adapter. It turns a
// free-text post into a mapping of schema fields, validates the service's
// answer against the field contracts, and applies a confidence gate.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/localsonly/localsbot/internal/config"
	"github.com/localsonly/localsbot/internal/schema"
)

// ConfidenceThreshold is the inclusive minimum confidence score (0-100) an
// extraction must reach to be accepted. Below it the whole extraction is
// discarded: better to silently skip a post than publish garbage.
const ConfidenceThreshold = 30

// Fields is the mapping of successfully extracted, type-correct field values.
// A nil Fields from Extract means "no extraction" and aborts entity creation;
// an empty non-nil map proceeds with defaults.
type Fields map[string]any

// Request carries everything the adapter needs for one extraction call.
type Request struct {
	// Text is the message text with the matched hashtag already stripped.
	Text string
	// Kind selects the target schema.
	Kind schema.Kind
	// Categories are the category values already used in the community,
	// offered to the service for verbatim reuse.
	Categories []string
	// CommunityName contextualizes the tone of the extraction.
	CommunityName string
	// Language is the community language code; extracted values must be in
	// this language.
	Language string
}

// Client is the extraction adapter interface.
//
// Extract returns (nil, nil) when there is nothing to publish: the service
// response failed to parse or its confidence fell below the threshold. Both
// are recoverable by design and must not be treated as transient faults; the
// adapter never retries.
type Client interface {
	Extract(ctx context.Context, req Request) (Fields, error)
}

type sdkClient struct {
	genaiClient   *genai.Client
	registry      *schema.Registry
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	modelName     string
}

// NewClient creates the extraction adapter backed by the Gemini API.
func NewClient(ctx context.Context, cfg config.ExtractConfig, registry *schema.Registry, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("extraction API key is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("schema registry is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	temperature := cfg.Temperature
	baseCfg := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
	}

	logger := log.With("component", "extract_client")
	logger.Info("Extraction client initialized", "model", cfg.ModelName)
	return &sdkClient{
		genaiClient:   gi,
		registry:      registry,
		log:           logger,
		contentConfig: baseCfg,
		modelName:     cfg.ModelName,
	}, nil
}

// Extract performs one outbound call to the extraction service. Transport
// errors are returned; the caller treats them the same as "no extraction".
func (c *sdkClient) Extract(ctx context.Context, req Request) (Fields, error) {
	fields, err := c.registry.ExtractedFields(req.Kind)
	if err != nil {
		return nil, err
	}

	prompt, err := buildPrompt(req, fields, c.registry.Describe(req.Kind))
	if err != nil {
		return nil, err
	}

	cfg := *c.contentConfig
	cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{
		Text: fmt.Sprintf(systemInstruction, req.CommunityName),
	}}}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := c.genaiClient.Models.GenerateContent(ctx, c.modelName, contents, &cfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Extraction API call failed", "kind", req.Kind, "error", err)
		return nil, fmt.Errorf("extraction API call failed: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		c.log.WarnContext(ctx, "Extraction response empty", "kind", req.Kind)
		return nil, nil
	}

	return interpretResponse(ctx, c.log, fields, raw), nil
}

// interpretResponse parses the raw service response, applies the confidence
// gate, and coerces every present field to its declared type. It returns nil
// for "no extraction"; any single field failing coercion is dropped, not
// fatal.
func interpretResponse(ctx context.Context, log *slog.Logger, fields []schema.Field, raw string) Fields {
	// The service occasionally emits tuple-style lists
	normalized := strings.ReplaceAll(strings.ReplaceAll(raw, "(", "["), ")", "]")

	var parsed struct {
		ExtractedInfo   map[string]any `json:"extracted_info"`
		ConfidenceScore float64        `json:"confidence_score"`
	}
	if err := json.Unmarshal([]byte(normalized), &parsed); err != nil {
		log.ErrorContext(ctx, "Failed to parse extraction response", "error", err, "response", raw)
		return nil
	}

	if parsed.ConfidenceScore < ConfidenceThreshold {
		log.WarnContext(ctx, "Extraction confidence below threshold",
			"confidence", parsed.ConfidenceScore, "threshold", ConfidenceThreshold)
		return nil
	}

	result := make(Fields)
	for _, f := range fields {
		value, ok := parsed.ExtractedInfo[f.Name]
		if !ok || value == nil {
			continue
		}
		coerced, err := Coerce(f.Type, value)
		if err != nil {
			log.WarnContext(ctx, "Dropping field that failed type coercion",
				"field", f.Name, "type", f.Type, "error", err)
			continue
		}
		result[f.Name] = coerced
	}

	log.DebugContext(ctx, "Extraction accepted",
		"confidence", parsed.ConfidenceScore, "fields", len(result))
	return result
}
