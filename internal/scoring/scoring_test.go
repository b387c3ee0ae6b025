package scoring

import (
	"math"
	"reflect"
	"testing"

	"github.com/pavelanni/evalhub/internal/model"
)

func mcQuestion(id string, weight float64, correct string, others ...string) model.ExamQuestion {
	opts := []model.ChoiceOption{{ID: correct, Text: correct, IsCorrect: true}}
	for _, o := range others {
		opts = append(opts, model.ChoiceOption{ID: o, Text: o})
	}
	return model.ExamQuestion{
		Question: model.Question{ID: id, Type: model.QuestionMultipleChoice, Config: model.MultipleChoiceConfig{Options: opts}},
		Weight:   weight,
	}
}

func typedQuestion(id string, qt model.QuestionType, weight float64) model.ExamQuestion {
	cfg, _ := model.DecodeTypeConfig(qt, nil)
	return model.ExamQuestion{
		Question: model.Question{ID: id, Type: qt, Config: cfg},
		Weight:   weight,
	}
}

func selected(answerID, questionID, option string) model.Answer {
	return model.Answer{ID: answerID, QuestionID: questionID, AnswerPayload: model.AnswerPayload{SelectedOptionID: &option}}
}

func ptr[T any](v T) *T { return &v }

func TestScore(t *testing.T) {
	tests := []struct {
		name       string
		questions  []model.ExamQuestion
		answers    []model.Answer
		score      float64
		maxScore   float64
		percentage float64
		scores     map[string]float64
	}{
		{
			name:       "one correct one wrong",
			questions:  []model.ExamQuestion{mcQuestion("q1", 2, "a", "b"), mcQuestion("q2", 3, "c", "d")},
			answers:    []model.Answer{selected("a1", "q1", "a"), selected("a2", "q2", "d")},
			score:      2,
			maxScore:   5,
			percentage: 40,
			scores:     map[string]float64{"a1": 2, "a2": 0},
		},
		{
			name:       "unanswered open text",
			questions:  []model.ExamQuestion{typedQuestion("q1", model.QuestionOpenText, 4)},
			maxScore:   4,
			percentage: 0,
			scores:     map[string]float64{},
		},
		{
			name:      "answered open text stays unscored",
			questions: []model.ExamQuestion{typedQuestion("q1", model.QuestionOpenText, 4), mcQuestion("q2", 1, "x")},
			answers: []model.Answer{
				{ID: "a1", QuestionID: "q1", AnswerPayload: model.AnswerPayload{AnswerText: ptr("essay")}},
				selected("a2", "q2", "x"),
			},
			score:      1,
			maxScore:   5,
			percentage: 20,
			scores:     map[string]float64{"a2": 1},
		},
		{
			name:       "numeric and graph are not auto scored",
			questions:  []model.ExamQuestion{typedQuestion("q1", model.QuestionNumeric, 2), typedQuestion("q2", model.QuestionGraphClick, 2)},
			answers:    []model.Answer{{ID: "a1", QuestionID: "q1", AnswerPayload: model.AnswerPayload{AnswerNumeric: ptr(3.0)}}},
			maxScore:   4,
			percentage: 0,
			scores:     map[string]float64{},
		},
		{
			name:       "unknown option scores zero",
			questions:  []model.ExamQuestion{mcQuestion("q1", 2, "a")},
			answers:    []model.Answer{selected("a1", "q1", "missing")},
			maxScore:   2,
			percentage: 0,
			scores:     map[string]float64{"a1": 0},
		},
		{
			name:       "multiple choice answer without selection is unscored",
			questions:  []model.ExamQuestion{mcQuestion("q1", 2, "a")},
			answers:    []model.Answer{{ID: "a1", QuestionID: "q1", AnswerPayload: model.AnswerPayload{AnswerText: ptr("a")}}},
			maxScore:   2,
			percentage: 0,
			scores:     map[string]float64{},
		},
		{
			name:       "no questions",
			percentage: 0,
			scores:     map[string]float64{},
		},
		{
			name:       "answer for question outside exam is ignored",
			questions:  []model.ExamQuestion{mcQuestion("q1", 1, "a")},
			answers:    []model.Answer{selected("a1", "q1", "a"), selected("a9", "q9", "a")},
			score:      1,
			maxScore:   1,
			percentage: 100,
			scores:     map[string]float64{"a1": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.questions, tt.answers)
			if got.Score != tt.score {
				t.Errorf("expected score %v, got %v", tt.score, got.Score)
			}
			if got.MaxScore != tt.maxScore {
				t.Errorf("expected max score %v, got %v", tt.maxScore, got.MaxScore)
			}
			if math.Abs(got.Percentage-tt.percentage) > 1e-9 {
				t.Errorf("expected percentage %v, got %v", tt.percentage, got.Percentage)
			}
			if !reflect.DeepEqual(got.AnswerScores, tt.scores) {
				t.Errorf("expected answer scores %v, got %v", tt.scores, got.AnswerScores)
			}
		})
	}
}

func TestScoreDeterministic(t *testing.T) {
	questions := []model.ExamQuestion{mcQuestion("q1", 1.5, "a", "b"), mcQuestion("q2", 2.5, "c", "d"), typedQuestion("q3", model.QuestionOpenText, 1)}
	answers := []model.Answer{selected("a2", "q2", "c"), selected("a1", "q1", "b")}

	first := Score(questions, answers)
	for i := 0; i < 20; i++ {
		if got := Score(questions, answers); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}
