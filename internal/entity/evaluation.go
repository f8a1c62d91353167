package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MalformedGrade is the sentinel grade recorded when the model response could
// not be parsed into a grade/remark pair.
const MalformedGrade = -1

// EvaluationResult is one graded judgment of a submitted answer.
type EvaluationResult struct {
	ResultID  string  `json:"result_id"`
	Criterion string  `json:"criterion"`
	Grade     float64 `json:"grade"`
	Remark    string  `json:"remark"`
	Timestamp string  `json:"timestamp"`
	LLM       string  `json:"llm"`
	Sources   Sources `json:"sources"`
}

// EvaluationData accumulates the grading state of one evaluation session.
// Answers are content-addressed: the same literal answer text always lands in
// the same result bucket, no matter when it is resubmitted.
type EvaluationData struct {
	Scenario string                        `json:"scenario"`
	Criteria []string                      `json:"criteria"`
	Answers  map[string]string             `json:"answers"`
	Results  map[string][]EvaluationResult `json:"results"`
}

// NewEvaluationData returns an empty accumulator.
func NewEvaluationData() *EvaluationData {
	return &EvaluationData{
		Criteria: []string{},
		Answers:  map[string]string{},
		Results:  map[string][]EvaluationResult{},
	}
}

// Clone returns a copy detached from the original: mutating either side never
// touches the other's criteria, answers or result buckets. Recorded results
// are immutable once added, so their inner fields are shared.
func (d *EvaluationData) Clone() *EvaluationData {
	clone := &EvaluationData{
		Scenario: d.Scenario,
		Criteria: append([]string{}, d.Criteria...),
		Answers:  make(map[string]string, len(d.Answers)),
		Results:  make(map[string][]EvaluationResult, len(d.Results)),
	}

	for key, answer := range d.Answers {
		clone.Answers[key] = answer
	}
	for key, results := range d.Results {
		clone.Results[key] = append([]EvaluationResult{}, results...)
	}

	return clone
}

// AnswerKey returns the content hash bucketing an answer. Leading and trailing
// whitespace never changes the key.
func AnswerKey(answer string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(answer)))
	return hex.EncodeToString(sum[:])
}

// AddCriterion appends a criterion if it is not already present. Returns true
// when the set changed.
func (d *EvaluationData) AddCriterion(criterion string) bool {
	for _, c := range d.Criteria {
		if c == criterion {
			return false
		}
	}
	d.Criteria = append(d.Criteria, criterion)
	return true
}

// AddResult appends a result to the bucket of the given answer, creating the
// bucket on first submission.
func (d *EvaluationData) AddResult(answer string, result EvaluationResult) {
	trimmed := strings.TrimSpace(answer)
	key := AnswerKey(trimmed)

	if _, ok := d.Answers[key]; !ok {
		d.Answers[key] = trimmed
		d.Results[key] = []EvaluationResult{}
	}

	d.Results[key] = append(d.Results[key], result)
}
