package queue

import (
	"context"

	"github.com/neptunelabs/fsi-client/internal/api"
)

// Choice is an answer to a Question.
type Choice int

const (
	ChoiceCancel Choice = iota
	ChoiceOverwrite
	ChoiceOverwriteAll
	ChoiceSkip
	ChoiceSkipAll
)

func (c Choice) String() string {
	switch c {
	case ChoiceOverwrite:
		return "overwrite"
	case ChoiceOverwriteAll:
		return "overwrite-all"
	case ChoiceSkip:
		return "skip"
	case ChoiceSkipAll:
		return "skip-all"
	default:
		return "cancel"
	}
}

// applyToAll reports whether the choice is remembered for the rest of the run.
func (c Choice) applyToAll() bool {
	return c == ChoiceOverwriteAll || c == ChoiceSkipAll
}

// QuestionKind tells a prompt which situation it is asked about.
type QuestionKind int

const (
	// QuestionConflict: the target exists. Overwrite choices are offered.
	QuestionConflict QuestionKind = iota
	// QuestionError: an item or entry failed.
	QuestionError
)

// Question is passed to a PromptFunc.
type Question struct {
	Kind QuestionKind
	// Op is the batch operation or item name.
	Op string
	// Path is the entry concerned, empty for item level errors.
	Path    string
	Err     error
	Choices []Choice
}

// Key is the classification the answer is remembered under.
func (q Question) Key() string {
	if q.Kind == QuestionConflict {
		return api.KeyConflict
	}
	return classify(q.Err)
}

// memoKey is the key an "-all" answer is remembered under. Conflict and
// error questions never share an answer, even for the same classification.
func (q Question) memoKey() string {
	if q.Kind == QuestionConflict {
		return api.KeyConflict
	}
	return "error:" + q.Key()
}

// PromptFunc asks the user how to go on. Returning an error stops the run.
type PromptFunc func(ctx context.Context, q Question) (Choice, error)

var (
	conflictChoices = []Choice{ChoiceCancel, ChoiceOverwrite, ChoiceOverwriteAll, ChoiceSkip, ChoiceSkipAll}
	errorChoices    = []Choice{ChoiceCancel, ChoiceSkip, ChoiceSkipAll}
)

// Always returns a PromptFunc that answers every conflict with c and
// cancels on any other error. The CLI uses it for --yes and --skip-existing.
func Always(c Choice) PromptFunc {
	return func(_ context.Context, q Question) (Choice, error) {
		if q.Kind != QuestionConflict {
			return ChoiceCancel, nil
		}
		return c, nil
	}
}
