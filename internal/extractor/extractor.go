// Package extractor turns normalized page text into a structured extraction
// record. Two backends implement the same contract: a deterministic
// keyword-heuristic scanner and a model-backed variant that prompts an
// external text-generation service.
package extractor

import (
	"context"
	"fmt"

	"github.com/progwatch/progwatch-cli/internal/model"
	"github.com/progwatch/progwatch-cli/internal/schema"
)

// Extractor is the extraction backend contract. Implementations must be
// deterministic with respect to identical input text and configuration.
type Extractor interface {
	// Extract returns a best-effort record for the schema. Field values may
	// be null; confidences are provisional until the validation scorer runs.
	Extract(ctx context.Context, normalizedText string, s *schema.Schema) (*model.ExtractionRecord, error)

	// Name identifies the backend ("heuristic" or "model").
	Name() string
}

// Generator is the external text-generation boundary used by the
// model-backed extractor.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GenerateRequest carries a prompt and the determinism parameters for one
// text-generation call.
type GenerateRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int64
}

// MalformedResponseError means the model output was not parseable as the
// expected JSON schema after stripping code-fence markers. Terminal for the
// attempt; never retried.
type MalformedResponseError struct {
	Raw string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("extractor: model response is not valid JSON (%d bytes)", len(e.Raw))
}

// ServiceUnavailableError means the text-generation service could not be
// reached or kept erroring after the retry policy was exhausted. The attempt
// is aborted and no record is produced; the caller may reschedule.
type ServiceUnavailableError struct {
	Err error
}

func (e *ServiceUnavailableError) Error() string {
	return "extractor: text-generation service unavailable: " + e.Err.Error()
}

func (e *ServiceUnavailableError) Unwrap() error {
	return e.Err
}
