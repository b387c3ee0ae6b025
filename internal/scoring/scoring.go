// Package scoring computes automatic scores for objective questions at
// submission time.
package scoring

import "github.com/pavelanni/evalhub/internal/model"

// Result is the outcome of scoring one assignment.
type Result struct {
	Score      float64
	MaxScore   float64
	Percentage float64
	// AnswerScores maps answer IDs to awarded points. Answers that are not
	// automatically scored are absent.
	AnswerScores map[string]float64
}

// scorer awards points for an answer. It returns false when the answer
// must stay unscored.
type scorer func(q model.ExamQuestion, a model.Answer) (float64, bool)

// Only objective question types have a scorer. Every other type is left
// for manual grading.
var scorers = map[model.QuestionType]scorer{
	model.QuestionMultipleChoice: scoreMultipleChoice,
}

// Score scores answers against the exam's questions in the given order.
// Every question contributes its weight to MaxScore whether or not it was
// answered or can be scored automatically.
func Score(questions []model.ExamQuestion, answers []model.Answer) Result {
	byQuestion := make(map[string]model.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	res := Result{AnswerScores: make(map[string]float64)}
	for _, q := range questions {
		res.MaxScore += q.Weight

		score, ok := scorers[q.Question.Type]
		if !ok {
			continue
		}
		a, ok := byQuestion[q.Question.ID]
		if !ok {
			continue
		}
		points, ok := score(q, a)
		if !ok {
			continue
		}
		res.AnswerScores[a.ID] = points
		res.Score += points
	}

	if res.MaxScore > 0 {
		res.Percentage = (res.Score / res.MaxScore) * 100
	}
	return res
}

func scoreMultipleChoice(q model.ExamQuestion, a model.Answer) (float64, bool) {
	if a.SelectedOptionID == nil {
		return 0, false
	}
	cfg, _ := q.Question.Config.(model.MultipleChoiceConfig)
	if opt, ok := cfg.Option(*a.SelectedOptionID); ok && opt.IsCorrect {
		return q.Weight, true
	}
	return 0, true
}
