package pipeline

import "context"

// QuestionSuggester derives follow-up questions from the complete final
// answer text. It runs exactly once per stream, after the primary answer is
// fully flushed, never before: summarizing a partial answer would suggest
// questions the answer already covers.
type QuestionSuggester interface {
	SuggestQuestions(ctx context.Context, finalText string) ([]string, error)
}

type QuestionSuggesterFunc func(ctx context.Context, finalText string) ([]string, error)

func (f QuestionSuggesterFunc) SuggestQuestions(ctx context.Context, finalText string) ([]string, error) {
	if f == nil {
		return nil, nil
	}
	return f(ctx, finalText)
}
