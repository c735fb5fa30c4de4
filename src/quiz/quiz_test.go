package quiz

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Protocol-Lattice/go-tutor/src/models"
)

// fakeAgent replays scripted responses.
type fakeAgent struct {
	responses []string
	calls     int
	lastReq   models.Request
}

func (f *fakeAgent) Generate(_ context.Context, req models.Request) (string, error) {
	f.lastReq = req
	resp := f.responses[f.calls%len(f.responses)]
	f.calls++
	return resp, nil
}

// erroringAgent always fails, standing in for an unreachable provider.
type erroringAgent struct{}

func (erroringAgent) Generate(context.Context, models.Request) (string, error) {
	return "", errors.New("provider unreachable")
}

const validQuestionJSON = `{
	"question": "What organelle produces ATP?",
	"options": {"A": "Nucleus", "B": "Mitochondria", "C": "Ribosome", "D": "Golgi"},
	"correct": "B",
	"explanation": "Mitochondria run cellular respiration."
}`

func TestGenerateQuestion(t *testing.T) {
	agent := &fakeAgent{responses: []string{validQuestionJSON}}
	s := NewService(agent)

	q, err := s.GenerateQuestion(context.Background(), "biology", "cells", "easy", "")
	if err != nil {
		t.Fatalf("GenerateQuestion failed: %v", err)
	}
	if q.Correct != "B" || len(q.Options) != 4 {
		t.Fatalf("unexpected question: %+v", q)
	}
	if !strings.Contains(agent.lastReq.Prompt, "cells") || !strings.Contains(agent.lastReq.Prompt, "biology") {
		t.Fatalf("prompt missing topic or subject: %q", agent.lastReq.Prompt)
	}
}

func TestGenerateQuestionWithContext(t *testing.T) {
	agent := &fakeAgent{responses: []string{validQuestionJSON}}
	s := NewService(agent)

	_, err := s.GenerateQuestion(context.Background(), "biology", "cells", "easy", "mitochondria notes")
	if err != nil {
		t.Fatalf("GenerateQuestion failed: %v", err)
	}
	if !strings.Contains(agent.lastReq.Prompt, "mitochondria notes") {
		t.Fatal("study context not threaded into prompt")
	}
}

func TestGenerateQuestionStripsFences(t *testing.T) {
	fenced := "```json\n" + validQuestionJSON + "\n```"
	agent := &fakeAgent{responses: []string{fenced}}
	s := NewService(agent)

	q, err := s.GenerateQuestion(context.Background(), "biology", "cells", "easy", "")
	if err != nil {
		t.Fatalf("GenerateQuestion failed on fenced payload: %v", err)
	}
	if q.Question == "" {
		t.Fatal("fenced payload not parsed")
	}
}

func TestGenerateQuestionMalformed(t *testing.T) {
	agent := &fakeAgent{responses: []string{"I cannot answer that."}}
	s := NewService(agent)

	if _, err := s.GenerateQuestion(context.Background(), "biology", "cells", "easy", ""); err == nil {
		t.Fatal("expected error for non-JSON response")
	}
}

func TestGenerateQuestionInvalidShape(t *testing.T) {
	cases := []string{
		`{"question": "", "options": {"A":"a","B":"b","C":"c","D":"d"}, "correct": "A"}`,
		`{"question": "q", "options": {"A":"a","B":"b"}, "correct": "A"}`,
		`{"question": "q", "options": {"A":"a","B":"b","C":"c","D":"d"}, "correct": "E"}`,
	}
	for _, payload := range cases {
		agent := &fakeAgent{responses: []string{payload}}
		s := NewService(agent)
		if _, err := s.GenerateQuestion(context.Background(), "biology", "cells", "easy", ""); err == nil {
			t.Fatalf("expected validation error for payload %s", payload)
		}
	}
}

func TestGenerateQuestionSanitizesInputs(t *testing.T) {
	agent := &fakeAgent{responses: []string{validQuestionJSON}}
	s := NewService(agent)

	_, err := s.GenerateQuestion(context.Background(), `bio"; drop table`, "cells <script>", "easy", "")
	if err != nil {
		t.Fatalf("GenerateQuestion failed: %v", err)
	}
	if strings.Contains(agent.lastReq.Prompt, `bio";`) || strings.Contains(agent.lastReq.Prompt, "<script>") {
		t.Fatalf("injection text survived sanitization: %q", agent.lastReq.Prompt)
	}
	if !strings.Contains(agent.lastReq.Prompt, "drop table") {
		t.Fatalf("sanitization should strip characters, not whole values: %q", agent.lastReq.Prompt)
	}
}

func TestExplainConceptSanitizesInputs(t *testing.T) {
	agent := &fakeAgent{responses: []string{"fine"}}
	s := NewService(agent)

	if _, err := s.ExplainConcept(context.Background(), "bio", "mitosis'; --<", ""); err != nil {
		t.Fatalf("ExplainConcept failed: %v", err)
	}
	if strings.Contains(agent.lastReq.Prompt, "';") || strings.Contains(agent.lastReq.Prompt, "--<") {
		t.Fatalf("injection text survived sanitization: %q", agent.lastReq.Prompt)
	}
}

func TestGenerateQuiz(t *testing.T) {
	agent := &fakeAgent{responses: []string{validQuestionJSON}}
	s := NewService(agent)

	qs, err := s.GenerateQuiz(context.Background(), "biology", "cells", "easy", "", 3)
	if err != nil {
		t.Fatalf("GenerateQuiz failed: %v", err)
	}
	if len(qs) != 3 || agent.calls != 3 {
		t.Fatalf("expected 3 questions from 3 calls, got %d/%d", len(qs), agent.calls)
	}
}

func TestCheckChoice(t *testing.T) {
	q := Question{
		Question:    "q",
		Options:     map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"},
		Correct:     "B",
		Explanation: "because",
	}
	if v := q.CheckChoice(" b "); !v.Correct || v.Score != 1 || v.Source != "literal" {
		t.Fatalf("case and whitespace must not matter: %+v", v)
	}
	v := q.CheckChoice("A")
	if v.Correct || v.Score != 0 {
		t.Fatalf("wrong choice graded correct: %+v", v)
	}
	if !strings.Contains(v.Feedback, "B") {
		t.Fatalf("feedback should name the right answer: %q", v.Feedback)
	}
}

func TestEvaluateAnswer(t *testing.T) {
	agent := &fakeAgent{responses: []string{`{"correct": true, "score": 0.9, "feedback": "well put"}`}}
	s := NewService(agent)

	v, err := s.EvaluateAnswer(context.Background(), "What is ATP?", "energy currency", "the cell's energy currency")
	if err != nil {
		t.Fatalf("EvaluateAnswer failed: %v", err)
	}
	if !v.Correct || v.Feedback != "well put" || v.Score != 0.9 {
		t.Fatalf("unexpected verdict: %+v", v)
	}
	if v.Source != "model" {
		t.Fatalf("expected model-sourced verdict, got %q", v.Source)
	}
	if agent.lastReq.Temperature != 0 {
		t.Fatal("grading should run at temperature 0")
	}
}

func TestEvaluateAnswerScoreClamped(t *testing.T) {
	agent := &fakeAgent{responses: []string{`{"correct": true, "score": 7.5, "feedback": "f"}`}}
	s := NewService(agent)

	v, err := s.EvaluateAnswer(context.Background(), "q", "e", "a")
	if err != nil {
		t.Fatalf("EvaluateAnswer failed: %v", err)
	}
	if v.Score != 1 {
		t.Fatalf("expected score clamped to 1, got %v", v.Score)
	}
}

func TestEvaluateAnswerMalformedFallsBack(t *testing.T) {
	agent := &fakeAgent{responses: []string{"Sure! The answer looks correct to me."}}
	s := NewService(agent)

	v, err := s.EvaluateAnswer(context.Background(), "q", "energy currency", " Energy Currency ")
	if err != nil {
		t.Fatalf("expected literal fallback, got error: %v", err)
	}
	if v.Source != "literal" {
		t.Fatalf("expected literal-sourced verdict, got %q", v.Source)
	}
	if !v.Correct || v.Score != 1 {
		t.Fatalf("exact match must grade correct with full score: %+v", v)
	}

	v, err = s.EvaluateAnswer(context.Background(), "q", "energy currency", "something else")
	if err != nil {
		t.Fatalf("expected literal fallback, got error: %v", err)
	}
	if v.Correct || v.Score != 0 || v.Source != "literal" {
		t.Fatalf("mismatch must grade incorrect: %+v", v)
	}
	if !strings.Contains(v.Feedback, "energy currency") {
		t.Fatalf("fallback feedback should name the expected answer: %q", v.Feedback)
	}
}

func TestEvaluateAnswerTransportFailureFallsBack(t *testing.T) {
	s := NewService(erroringAgent{})

	v, err := s.EvaluateAnswer(context.Background(), "q", "answer", "answer")
	if err != nil {
		t.Fatalf("expected literal fallback, got error: %v", err)
	}
	if !v.Correct || v.Source != "literal" {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}

func TestEvaluateAnswerCancelledContext(t *testing.T) {
	s := NewService(erroringAgent{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.EvaluateAnswer(ctx, "q", "e", "a"); err == nil {
		t.Fatal("cancellation must surface as an error, not a fallback grade")
	}
}

func TestExplainConcept(t *testing.T) {
	agent := &fakeAgent{responses: []string{"  Mitochondria make energy.  "}}
	s := NewService(agent)

	out, err := s.ExplainConcept(context.Background(), "biology", "mitochondria", "")
	if err != nil {
		t.Fatalf("ExplainConcept failed: %v", err)
	}
	if out != "Mitochondria make energy." {
		t.Fatalf("expected trimmed explanation, got %q", out)
	}
}

func TestExplainConceptEmpty(t *testing.T) {
	agent := &fakeAgent{responses: []string{"   "}}
	s := NewService(agent)
	if _, err := s.ExplainConcept(context.Background(), "biology", "mitochondria", ""); err == nil {
		t.Fatal("expected error for empty explanation")
	}
}

func TestCleanJSON(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                       `{"a":1}`,
		"```json\n{\"a\":1}\n```":         `{"a":1}`,
		"```\n{\"a\":1}\n```":             `{"a":1}`,
		"  \n```json\n{\"a\":1}\n```\n  ": `{"a":1}`,
	}
	for in, want := range cases {
		if got := CleanJSON(in); got != want {
			t.Fatalf("CleanJSON(%q) = %q, want %q", in, got, want)
		}
	}
}
