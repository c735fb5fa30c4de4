package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/go-tutor/src/models"
	"github.com/Protocol-Lattice/go-tutor/src/security"
)

// Question is one multiple-choice item.
type Question struct {
	Question    string            `json:"question"`
	Options     map[string]string `json:"options"`
	Correct     string            `json:"correct"`
	Explanation string            `json:"explanation"`
}

// Verdict is the outcome of grading one answer. Source records whether
// the grade came from the model or from literal comparison.
type Verdict struct {
	Correct  bool    `json:"correct"`
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
	Source   string  `json:"source"` // "model" | "literal"
}

var optionKeys = []string{"A", "B", "C", "D"}

// Service generates questions, grades answers and explains concepts
// through a language model. Wrap the agent in a retry layer for
// production use.
type Service struct {
	Agent       models.Agent
	Temperature float32
}

func NewService(agent models.Agent) *Service {
	return &Service{Agent: agent, Temperature: 0.7}
}

const questionSystem = `You are a tutor generating quiz questions. ` +
	`Reply with a single JSON object and nothing else.`

// GenerateQuestion produces one multiple-choice question about the topic.
// studyContext, when non-empty, grounds the question in the student's own
// materials.
func (s *Service) GenerateQuestion(ctx context.Context, subject, topic, difficulty, studyContext string) (*Question, error) {
	subject = security.Sanitize(subject, security.MaxSubjectLength)
	topic = security.Sanitize(topic, security.MaxTopicLength)
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Generate a %s difficulty multiple-choice question about %s in %s.\n", difficulty, topic, subject)
	if studyContext != "" {
		fmt.Fprintf(&prompt, "Base the question on this study material:\n%s\n", studyContext)
	}
	prompt.WriteString(`Respond with JSON: {"question": "...", "options": {"A": "...", "B": "...", "C": "...", "D": "..."}, "correct": "A", "explanation": "..."}`)

	raw, err := s.Agent.Generate(ctx, models.Request{
		System:      questionSystem,
		Prompt:      prompt.String(),
		Temperature: s.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generate question: %w", err)
	}

	var q Question
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &q); err != nil {
		return nil, fmt.Errorf("malformed question payload: %w", err)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return &q, nil
}

// GenerateQuiz produces n questions one at a time. It fails on the
// first unrecoverable generation error.
func (s *Service) GenerateQuiz(ctx context.Context, subject, topic, difficulty, studyContext string, n int) ([]Question, error) {
	out := make([]Question, 0, n)
	for i := 0; i < n; i++ {
		q, err := s.GenerateQuestion(ctx, subject, topic, difficulty, studyContext)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		out = append(out, *q)
	}
	return out, nil
}

// Validate checks the structural invariants of a generated question.
func (q *Question) Validate() error {
	if strings.TrimSpace(q.Question) == "" {
		return fmt.Errorf("question text is empty")
	}
	if len(q.Options) != len(optionKeys) {
		return fmt.Errorf("expected %d options, got %d", len(optionKeys), len(q.Options))
	}
	for _, k := range optionKeys {
		if strings.TrimSpace(q.Options[k]) == "" {
			return fmt.Errorf("option %s is missing", k)
		}
	}
	q.Correct = strings.ToUpper(strings.TrimSpace(q.Correct))
	if _, ok := q.Options[q.Correct]; !ok {
		return fmt.Errorf("correct answer %q is not an option", q.Correct)
	}
	return nil
}

// CheckChoice grades a multiple-choice selection locally, without a
// model round trip.
func (q *Question) CheckChoice(choice string) Verdict {
	choice = strings.ToUpper(strings.TrimSpace(choice))
	if choice == q.Correct {
		return Verdict{Correct: true, Score: 1, Feedback: q.Explanation, Source: "literal"}
	}
	return Verdict{
		Correct:  false,
		Score:    0,
		Feedback: fmt.Sprintf("The correct answer is %s. %s", q.Correct, q.Explanation),
		Source:   "literal",
	}
}

const gradingSystem = `You are a tutor grading a student's free-form answer. ` +
	`Reply with a single JSON object: {"correct": true, "score": 0.9, "feedback": "..."} ` +
	`where score is between 0 and 1, and nothing else.`

// EvaluateAnswer grades a free-form answer against the expected one. The
// model call fails over to exact string comparison: a transport error or
// a malformed verdict payload downgrades to a literal-sourced Verdict
// rather than losing the answer.
func (s *Service) EvaluateAnswer(ctx context.Context, question, expected, answer string) (*Verdict, error) {
	prompt := fmt.Sprintf(
		"Question: %s\nExpected answer: %s\nStudent answer: %s\nIs the student answer correct? Be lenient with phrasing, strict with substance.",
		question, expected, answer)

	raw, err := s.Agent.Generate(ctx, models.Request{
		System:      gradingSystem,
		Prompt:      prompt,
		Temperature: 0,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("evaluate answer: %w", err)
		}
		return literalVerdict(expected, answer), nil
	}
	var v Verdict
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &v); err != nil {
		return literalVerdict(expected, answer), nil
	}
	if v.Score < 0 {
		v.Score = 0
	}
	if v.Score > 1 {
		v.Score = 1
	}
	v.Source = "model"
	return &v, nil
}

// literalVerdict grades by exact comparison, ignoring case and
// surrounding whitespace.
func literalVerdict(expected, answer string) *Verdict {
	if strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(expected)) {
		return &Verdict{Correct: true, Score: 1, Feedback: "Exactly right.", Source: "literal"}
	}
	return &Verdict{
		Correct:  false,
		Score:    0,
		Feedback: fmt.Sprintf("The expected answer was: %s", expected),
		Source:   "literal",
	}
}

// ExplainConcept asks for a short explanation of a concept, grounded in
// the student's materials when provided.
func (s *Service) ExplainConcept(ctx context.Context, subject, concept, studyContext string) (string, error) {
	subject = security.Sanitize(subject, security.MaxSubjectLength)
	concept = security.Sanitize(concept, security.MaxPromptLength)
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Explain %s (subject: %s) to a student in a few short paragraphs.\n", concept, subject)
	if studyContext != "" {
		fmt.Fprintf(&prompt, "Use this study material where relevant:\n%s\n", studyContext)
	}
	out, err := s.Agent.Generate(ctx, models.Request{
		System:      "You are a patient tutor.",
		Prompt:      prompt.String(),
		Temperature: s.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("explain concept: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("empty explanation from model")
	}
	return out, nil
}

// CleanJSON strips markdown code fences that models often wrap around
// JSON payloads.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
