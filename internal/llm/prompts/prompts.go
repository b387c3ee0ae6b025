package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/evalhub/internal/model"
)

//go:embed templates/*.txt
var Files embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict is a strict grading variant for majors.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient is a lenient grading variant for electives.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce         sync.Once
	loadErr          error
	suggestTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// SuggestData holds template data for feedback suggestion prompts.
type SuggestData struct {
	QuestionTitle string
	QuestionText  string
	QuestionType  model.QuestionType
	Reference     string
	Answer        string
	MinGrade      int
	MaxGrade      int
}

// Load loads prompt templates from fsys, which must hold
// templates/suggest_<variant>.txt for every variant. Templates are loaded
// only once per process.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		suggestTemplates = make(map[PromptVariant]*template.Template)
		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			file := "templates/suggest_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New("suggest").Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			suggestTemplates[v] = tmpl
		}
	})
	return loadErr
}

// BuildSuggestPrompt builds the prompt asking for a grade and feedback on
// one answer.
func BuildSuggestPrompt(variant PromptVariant, q model.Question, a model.Answer, minGrade, maxGrade int) (string, error) {
	if suggestTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := suggestTemplates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data := SuggestData{
		QuestionTitle: q.Title,
		QuestionText:  q.Content,
		QuestionType:  q.Type,
		Reference:     reference(q.Config),
		Answer:        sanitizeAnswer(answerText(q.Config, a)),
		MinGrade:      minGrade,
		MaxGrade:      maxGrade,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// reference describes the answer key, if the question has one.
func reference(cfg model.TypeConfig) string {
	switch c := cfg.(type) {
	case model.MultipleChoiceConfig:
		var correct []string
		for _, o := range c.Options {
			if o.IsCorrect {
				correct = append(correct, o.Text)
			}
		}
		if len(correct) == 0 {
			return ""
		}
		return "Correct option: " + strings.Join(correct, "; ")
	case model.NumericConfig:
		s := "Correct value: " + formatFloat(c.CorrectValue)
		if c.Unit != nil && *c.Unit != "" {
			s += " " + *c.Unit
		}
		if c.Tolerance > 0 {
			s += " (tolerance " + formatFloat(c.Tolerance)
			if c.ToleranceType == model.TolerancePercentage {
				s += "%"
			}
			s += ")"
		}
		return s
	case model.GraphClickConfig:
		if c.CorrectPoint != nil {
			return fmt.Sprintf("Correct point: (%s, %s)", formatFloat(c.CorrectPoint.X), formatFloat(c.CorrectPoint.Y))
		}
	}
	return ""
}

// answerText renders the populated response field as text.
func answerText(cfg model.TypeConfig, a model.Answer) string {
	switch {
	case a.AnswerText != nil && a.AnswerLatex != nil:
		return *a.AnswerText + "\n\n" + *a.AnswerLatex
	case a.AnswerText != nil:
		return *a.AnswerText
	case a.AnswerLatex != nil:
		return *a.AnswerLatex
	case a.AnswerNumeric != nil:
		return formatFloat(*a.AnswerNumeric)
	case a.AnswerPoint != nil:
		return fmt.Sprintf("(%s, %s)", formatFloat(a.AnswerPoint.X), formatFloat(a.AnswerPoint.Y))
	case a.SelectedOptionID != nil:
		if mc, ok := cfg.(model.MultipleChoiceConfig); ok {
			if o, ok := mc.Option(*a.SelectedOptionID); ok {
				return o.Text
			}
		}
		return *a.SelectedOptionID
	}
	return ""
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > 10000 {
		runes := []rune(answer)
		runes = runes[:10000]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
