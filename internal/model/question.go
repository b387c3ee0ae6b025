package model

import (
	"encoding/json"
	"fmt"
)

// QuestionType tags the variant of a question's configuration.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionNumeric        QuestionType = "numeric"
	QuestionGraphClick     QuestionType = "graph_click"
	QuestionOpenText       QuestionType = "open_text"
)

// TypeConfig is the type-specific configuration of a question.
// Implementations are MultipleChoiceConfig, NumericConfig, GraphClickConfig
// and OpenTextConfig.
type TypeConfig interface {
	QuestionType() QuestionType
	// Public returns the configuration with answer keys removed.
	Public() any
}

// Question is a question bank entry.
type Question struct {
	ID         string       `json:"id"`
	TeacherID  string       `json:"teacherId"`
	Title      string       `json:"title"`
	Content    string       `json:"content"`
	Type       QuestionType `json:"questionType"`
	Config     TypeConfig   `json:"typeConfig"`
	Difficulty string       `json:"difficulty"`
}

// UnmarshalJSON decodes typeConfig into the variant selected by questionType.
func (q *Question) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         string          `json:"id"`
		TeacherID  string          `json:"teacherId"`
		Title      string          `json:"title"`
		Content    string          `json:"content"`
		Type       QuestionType    `json:"questionType"`
		Config     json.RawMessage `json:"typeConfig"`
		Difficulty string          `json:"difficulty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cfg, err := DecodeTypeConfig(raw.Type, raw.Config)
	if err != nil {
		return err
	}
	*q = Question{
		ID:         raw.ID,
		TeacherID:  raw.TeacherID,
		Title:      raw.Title,
		Content:    raw.Content,
		Type:       raw.Type,
		Config:     cfg,
		Difficulty: raw.Difficulty,
	}
	return nil
}

// ChoiceOption is one option of a multiple choice question.
type ChoiceOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
	Order     int    `json:"order"`
}

// PublicChoiceOption is a ChoiceOption without its correctness flag.
type PublicChoiceOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

// MultipleChoiceConfig configures a multiple_choice question.
type MultipleChoiceConfig struct {
	Options        []ChoiceOption `json:"options"`
	AllowMultiple  bool           `json:"allowMultiple"`
	ShuffleOptions bool           `json:"shuffleOptions"`
}

func (MultipleChoiceConfig) QuestionType() QuestionType { return QuestionMultipleChoice }

// Option returns the option with the given id.
func (c MultipleChoiceConfig) Option(id string) (ChoiceOption, bool) {
	for _, o := range c.Options {
		if o.ID == id {
			return o, true
		}
	}
	return ChoiceOption{}, false
}

func (c MultipleChoiceConfig) Public() any {
	opts := make([]PublicChoiceOption, 0, len(c.Options))
	for _, o := range c.Options {
		opts = append(opts, PublicChoiceOption{ID: o.ID, Text: o.Text, Order: o.Order})
	}
	return struct {
		Options        []PublicChoiceOption `json:"options"`
		AllowMultiple  bool                 `json:"allowMultiple"`
		ShuffleOptions bool                 `json:"shuffleOptions"`
	}{opts, c.AllowMultiple, c.ShuffleOptions}
}

// ToleranceType selects how NumericConfig.Tolerance is interpreted.
type ToleranceType string

const (
	ToleranceAbsolute   ToleranceType = "absolute"
	TolerancePercentage ToleranceType = "percentage"
)

// NumericConfig configures a numeric question.
type NumericConfig struct {
	CorrectValue  float64       `json:"correctValue"`
	Tolerance     float64       `json:"tolerance"`
	ToleranceType ToleranceType `json:"toleranceType"`
	Unit          *string       `json:"unit,omitempty"`
	ShowUnitInput bool          `json:"showUnitInput"`
}

func (NumericConfig) QuestionType() QuestionType { return QuestionNumeric }

func (c NumericConfig) Public() any {
	return struct {
		Unit          *string `json:"unit,omitempty"`
		ShowUnitInput bool    `json:"showUnitInput"`
	}{c.Unit, c.ShowUnitInput}
}

// GraphLine is a polyline drawn on a graph_click canvas.
type GraphLine struct {
	ID     string  `json:"id"`
	Points []Point `json:"points"`
	Color  string  `json:"color"`
	Label  string  `json:"label,omitempty"`
	Type   string  `json:"type"`
}

// GraphFunction is a plotted expression on a graph_click canvas.
type GraphFunction struct {
	ID         string `json:"id"`
	Expression string `json:"expression"`
	Color      string `json:"color"`
	Label      string `json:"label,omitempty"`
}

// Area is an axis-aligned rectangle.
type Area struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// GraphClickConfig configures a graph_click question.
type GraphClickConfig struct {
	GraphType     string          `json:"graphType"`
	ImageURL      *string         `json:"imageUrl,omitempty"`
	XRange        [2]float64      `json:"xRange"`
	YRange        [2]float64      `json:"yRange"`
	XLabel        string          `json:"xLabel"`
	YLabel        string          `json:"yLabel"`
	Title         string          `json:"title,omitempty"`
	ShowGrid      bool            `json:"showGrid"`
	GridStep      float64         `json:"gridStep"`
	Lines         []GraphLine     `json:"lines"`
	Functions     []GraphFunction `json:"functions"`
	IsInteractive bool            `json:"isInteractive"`
	AnswerType    string          `json:"answerType,omitempty"`

	CorrectPoint      *Point   `json:"correctPoint,omitempty"`
	ToleranceRadius   *float64 `json:"toleranceRadius,omitempty"`
	CorrectFunctionID *string  `json:"correctFunctionId,omitempty"`
	CorrectArea       *Area    `json:"correctArea,omitempty"`
}

func (GraphClickConfig) QuestionType() QuestionType { return QuestionGraphClick }

func (c GraphClickConfig) Public() any {
	c.CorrectPoint = nil
	c.ToleranceRadius = nil
	c.CorrectFunctionID = nil
	c.CorrectArea = nil
	return c
}

// OpenTextConfig configures an open_text question. It has no fields;
// open answers are graded by hand.
type OpenTextConfig struct{}

func (OpenTextConfig) QuestionType() QuestionType { return QuestionOpenText }

func (c OpenTextConfig) Public() any { return c }

// DecodeTypeConfig decodes raw JSON into the configuration variant for t.
func DecodeTypeConfig(t QuestionType, raw []byte) (TypeConfig, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}
	switch t {
	case QuestionMultipleChoice:
		var c MultipleChoiceConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode %s config: %w", t, err)
		}
		return c, nil
	case QuestionNumeric:
		var c NumericConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode %s config: %w", t, err)
		}
		if c.ToleranceType == "" {
			c.ToleranceType = ToleranceAbsolute
		}
		return c, nil
	case QuestionGraphClick:
		var c GraphClickConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode %s config: %w", t, err)
		}
		return c, nil
	case QuestionOpenText:
		return OpenTextConfig{}, nil
	default:
		return nil, fmt.Errorf("unknown question type %q", t)
	}
}

// Accepts reports whether the payload's populated field fits the question type.
func (t QuestionType) Accepts(p AnswerPayload) bool {
	switch t {
	case QuestionMultipleChoice:
		return p.SelectedOptionID != nil
	case QuestionNumeric:
		return p.AnswerNumeric != nil
	case QuestionGraphClick:
		return p.AnswerPoint != nil
	case QuestionOpenText:
		return p.AnswerText != nil || p.AnswerLatex != nil
	}
	return false
}
