package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progwatch/progwatch-cli/internal/extractor"
)

func TestProcessBatch_CountsOutcomes(t *testing.T) {
	r, _ := newTestRunner(t, extractor.NewHeuristic(nil))

	inputs := []SourceInput{
		input("https://example.edu/a", acceptText),
		input("https://example.edu/b", reviewText),
		input("https://example.edu/c", rejectText),
		input("not a url", acceptText),
	}

	summary := r.ProcessBatch(context.Background(), inputs, 2)

	assert.Equal(t, 4, summary.Total())
	assert.Equal(t, 1, summary.Accepted)
	assert.Equal(t, 1, summary.Review)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, 0, summary.Unchanged)
	assert.Equal(t, 1, summary.Failed)

	// Results keep input order regardless of scheduling.
	require.Len(t, summary.Results, 4)
	assert.Equal(t, OutcomeAccepted, summary.Results[0].Outcome)
	assert.Equal(t, OutcomeReview, summary.Results[1].Outcome)
	assert.Equal(t, OutcomeRejected, summary.Results[2].Outcome)
	assert.Equal(t, OutcomeFailed, summary.Results[3].Outcome)
}

func TestProcessBatch_SameSourceTwice(t *testing.T) {
	r, st := newTestRunner(t, extractor.NewHeuristic(nil))

	// Two runs of the same document in one batch must never double-append;
	// whichever lands second is a freshness ping or a conflict retry that
	// converges on one stored version.
	inputs := []SourceInput{
		input("https://example.edu/msc", acceptText),
		input("https://example.edu/msc", acceptText),
	}

	summary := r.ProcessBatch(context.Background(), inputs, 2)

	assert.Equal(t, 2, summary.Total())
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1, summary.Accepted)
	assert.Equal(t, 1, summary.Unchanged)

	history, err := st.History(context.Background(), summary.Results[0].Source.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestProcessBatch_ConcurrencyFloor(t *testing.T) {
	r, _ := newTestRunner(t, extractor.NewHeuristic(nil))

	summary := r.ProcessBatch(context.Background(), []SourceInput{
		input("https://example.edu/a", acceptText),
	}, 0)

	assert.Equal(t, 1, summary.Total())
	assert.Equal(t, 1, summary.Accepted)
}
