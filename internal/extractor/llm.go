package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/progwatch/progwatch-cli/internal/model"
	"github.com/progwatch/progwatch-cli/internal/resilience"
	"github.com/progwatch/progwatch-cli/internal/schema"
)

// ModelVersion identifies the prompt/parse implementation for provenance
// and idempotence checks.
const ModelVersion = "v1"

const extractSystemText = "You are a research analyst extracting structured data from web pages. " +
	"Return a valid JSON object matching the requested schema. Use null for fields not found. " +
	"Do not include any text outside the JSON object."

const extractPromptTemplate = `Extract the following fields from the page text.

Fields:
%s
Page text:
%s

Return a JSON object with exactly one key per field listed above. Use null for any field the text does not answer.`

// ModelConfig configures the model-backed extractor.
type ModelConfig struct {
	// Model is the model identifier, recorded as field provenance.
	Model string

	// Temperature is pinned low so identical input yields identical output.
	Temperature float64

	// MaxTokens bounds the response size. Default: 1024.
	MaxTokens int64

	// Retry applies to transient service failures only; MalformedResponse
	// is terminal and never retried.
	Retry resilience.RetryConfig

	// Circuit guards the generation service: after repeated transient
	// failures calls fail fast instead of hammering a service that is down.
	Circuit resilience.CircuitConfig
}

// ModelBacked extracts fields by prompting an external text-generation
// service and parsing the response as JSON.
type ModelBacked struct {
	gen     Generator
	cfg     ModelConfig
	breaker *resilience.CircuitBreaker
}

// NewModelBacked creates a model-backed extractor over the given generator.
func NewModelBacked(gen Generator, cfg ModelConfig) *ModelBacked {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Circuit.ShouldTrip == nil {
		// Terminal service errors (bad request, auth) say nothing about
		// availability and must not open the circuit.
		cfg.Circuit.ShouldTrip = resilience.IsTransient
	}
	return &ModelBacked{gen: gen, cfg: cfg, breaker: resilience.NewCircuitBreaker(cfg.Circuit)}
}

func (m *ModelBacked) Name() string { return "model" }

// Extract prompts the service with the schema and text, retrying transient
// failures per the configured policy. It fails with ServiceUnavailableError
// when the call cannot be completed, and with MalformedResponseError when
// the response is not parseable JSON after stripping code-fence markers.
func (m *ModelBacked) Extract(ctx context.Context, normalizedText string, s *schema.Schema) (*model.ExtractionRecord, error) {
	req := GenerateRequest{
		System:      extractSystemText,
		Prompt:      fmt.Sprintf(extractPromptTemplate, renderFieldList(s), normalizedText),
		Temperature: m.cfg.Temperature,
		MaxTokens:   m.cfg.MaxTokens,
	}

	retryCfg := m.cfg.Retry
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = resilience.RetryLogger("textgen", "extract")
	}

	raw, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (string, error) {
		// ErrCircuitOpen is not transient, so an open circuit also stops
		// the retry loop.
		return resilience.Guard(m.breaker, func() (string, error) {
			return m.gen.Generate(ctx, req)
		})
	})
	if err != nil {
		return nil, &ServiceUnavailableError{Err: err}
	}

	cleaned := cleanJSON(raw)
	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		zap.L().Warn("extractor: model response not parseable",
			zap.String("model", m.cfg.Model),
			zap.String("raw", raw),
			zap.Error(err),
		)
		return nil, &MalformedResponseError{Raw: raw}
	}

	rec := &model.ExtractionRecord{
		Extractor:        m.Name(),
		ExtractorVersion: ModelVersion,
		Fields:           make(map[string]model.FieldValue, len(s.Fields)),
		ExtractedAt:      time.Now().UTC(),
	}

	for _, f := range s.Fields {
		val, ok := parsed[f.Name]
		if !ok || val == nil {
			rec.Fields[f.Name] = model.FieldValue{Confidence: 0}
			continue
		}
		rec.Fields[f.Name] = model.FieldValue{
			Value:      model.Str(stringify(val)),
			Confidence: 1.0,
			Provenance: "model:" + m.cfg.Model,
		}
	}

	return rec, nil
}

// renderFieldList formats the schema for prompt embedding, one field per line.
func renderFieldList(s *schema.Schema) string {
	var b strings.Builder
	for _, f := range s.Fields {
		fmt.Fprintf(&b, "- %s (%s", f.Name, f.Type)
		if f.Required {
			b.WriteString(", required")
		}
		b.WriteString(")")
		if f.Description != "" {
			b.WriteString(": " + f.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// stringify renders a parsed JSON value as the stored field string.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		// Arrays and objects are kept as compact JSON.
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// cleanJSON extracts a JSON object from text that may be wrapped in a
// markdown code fence. Only a single well-known fence marker is stripped;
// anything that still fails to parse is treated as malformed rather than
// recovered.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	return strings.TrimSpace(text)
}
