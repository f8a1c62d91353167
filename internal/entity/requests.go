package entity

// AlgorithmParamsRequest carries the flat, variant-dependent parameter fields
// sent alongside an algorithm name. Pointers distinguish absent fields from
// zero values.
type AlgorithmParamsRequest struct {
	K              *int     `json:"k,omitempty"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
	FetchK         *int     `json:"fetch_k,omitempty"`
	LambdaMult     *float64 `json:"lambda_mult,omitempty"`
}

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Question *string `json:"question"`
}

// EvalRequest is the body of POST /eval.
type EvalRequest struct {
	Criterion *string `json:"criterion"`
	Answer    *string `json:"answer"`
}

// NewSessionRequest is the body of POST /new_session.
type NewSessionRequest struct {
	Name      *string `json:"name"`
	Type      *string `json:"type"`
	LLM       *string `json:"llm"`
	Retriever *string `json:"retriever"`
	Algorithm *string `json:"algorithm"`
	AlgorithmParamsRequest
}

// UpdateConfigRequest is the body of POST /config.
type UpdateConfigRequest struct {
	Name      *string `json:"name"`
	LLM       *string `json:"llm"`
	Retriever *string `json:"retriever"`
	Algorithm *string `json:"algorithm"`
	AlgorithmParamsRequest
}

// UseAlgorithmRequest is the body of POST /algorithm.
type UseAlgorithmRequest struct {
	Algorithm *string `json:"algorithm"`
	AlgorithmParamsRequest
}

// UseRetrieverRequest is the body of POST /retriever.
type UseRetrieverRequest struct {
	Retriever *string `json:"retriever"`
}

// UseCriteriaRequest is the body of POST /criteria.
type UseCriteriaRequest struct {
	Criteria *[]string `json:"criteria"`
}

// UseScenarioRequest is the body of POST /scenario.
type UseScenarioRequest struct {
	Scenario *string `json:"scenario"`
}
