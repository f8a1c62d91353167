package entity

import (
	"encoding/json"
	"fmt"
)

// SessionType selects the shape of the chain built for a session.
type SessionType string

const (
	SessionTypeChat       SessionType = "chat"
	SessionTypeEvaluation SessionType = "evaluation"
)

// ParseSessionType converts a wire value into a SessionType.
func ParseSessionType(value string) (SessionType, error) {
	switch SessionType(value) {
	case SessionTypeChat, SessionTypeEvaluation:
		return SessionType(value), nil
	default:
		return "", fmt.Errorf("%w: '%s' is not a valid session type", ErrInvalidArgument, value)
	}
}

// AlgorithmType selects the retrieval ranking strategy.
type AlgorithmType string

const (
	AlgorithmSimilarity     AlgorithmType = "similarity"
	AlgorithmScoreThreshold AlgorithmType = "similarity_score_threshold"
	AlgorithmMMR            AlgorithmType = "mmr"
)

// ParseAlgorithmType converts a wire value into an AlgorithmType.
func ParseAlgorithmType(value string) (AlgorithmType, error) {
	switch AlgorithmType(value) {
	case AlgorithmSimilarity, AlgorithmScoreThreshold, AlgorithmMMR:
		return AlgorithmType(value), nil
	default:
		return "", fmt.Errorf("%w: '%s' is not a valid algorithm type", ErrInvalidArgument, value)
	}
}

// Bounds for the top-k style integer parameters shared by all variants.
const (
	MinTopK = 3
	MaxTopK = 99
)

// AlgorithmParams is the tagged union over the three retrieval parameter
// shapes. Every consumption site dispatches on the concrete type and must
// treat an unknown shape as a programming error.
type AlgorithmParams interface {
	AlgorithmType() AlgorithmType
	Validate() error
}

// SimilarityParams configures plain top-k similarity search.
type SimilarityParams struct {
	K int `json:"k"`
}

// ThresholdParams configures similarity search with a minimum score cutoff.
type ThresholdParams struct {
	K              int     `json:"k"`
	ScoreThreshold float64 `json:"score_threshold"`
}

// MMRParams configures max-marginal-relevance re-ranking.
type MMRParams struct {
	FetchK     int     `json:"fetch_k"`
	LambdaMult float64 `json:"lambda_mult"`
}

func DefaultSimilarityParams() *SimilarityParams {
	return &SimilarityParams{K: 4}
}

func DefaultThresholdParams() *ThresholdParams {
	return &ThresholdParams{K: 12, ScoreThreshold: 0.3}
}

func DefaultMMRParams() *MMRParams {
	return &MMRParams{FetchK: 20, LambdaMult: 0.5}
}

func (p *SimilarityParams) AlgorithmType() AlgorithmType { return AlgorithmSimilarity }

func (p *SimilarityParams) Validate() error {
	return boundedTopK("k", p.K)
}

func (p *ThresholdParams) AlgorithmType() AlgorithmType { return AlgorithmScoreThreshold }

func (p *ThresholdParams) Validate() error {
	if err := boundedTopK("k", p.K); err != nil {
		return err
	}
	return unitInterval("score_threshold", p.ScoreThreshold)
}

func (p *MMRParams) AlgorithmType() AlgorithmType { return AlgorithmMMR }

func (p *MMRParams) Validate() error {
	if err := boundedTopK("fetch_k", p.FetchK); err != nil {
		return err
	}
	return unitInterval("lambda_mult", p.LambdaMult)
}

func boundedTopK(name string, value int) error {
	if value < MinTopK || value > MaxTopK {
		return fmt.Errorf("%w: %s must be between %d and %d, but got %d",
			ErrInvalidArgument, name, MinTopK, MaxTopK, value)
	}
	return nil
}

func unitInterval(name string, value float64) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("%w: %s must be between 0.0 and 1.0, but got %g",
			ErrInvalidArgument, name, value)
	}
	return nil
}

// UnmarshalAlgorithmParams decodes the parameter payload matching the given
// algorithm variant.
func UnmarshalAlgorithmParams(alg AlgorithmType, data []byte) (AlgorithmParams, error) {
	var params AlgorithmParams
	switch alg {
	case AlgorithmSimilarity:
		params = &SimilarityParams{}
	case AlgorithmScoreThreshold:
		params = &ThresholdParams{}
	case AlgorithmMMR:
		params = &MMRParams{}
	default:
		return nil, fmt.Errorf("%w: '%s' is not a valid algorithm type", ErrInvalidArgument, alg)
	}

	if err := json.Unmarshal(data, params); err != nil {
		return nil, fmt.Errorf("%w: decode %s parameters: %v", ErrInvalidArgument, alg, err)
	}

	return params, nil
}

// SessionConfig is the persisted configuration of one session.
type SessionConfig struct {
	ID              string          `json:"id"`
	DisplayName     string          `json:"display_name"`
	SessionType     SessionType     `json:"session_type"`
	LLMName         string          `json:"llm_name"`
	RetrieverName   string          `json:"retriever_name"`
	AlgorithmType   AlgorithmType   `json:"algorithm_type"`
	AlgorithmParams AlgorithmParams `json:"algorithm_params"`
}

// UnmarshalJSON decodes a SessionConfig, selecting the parameter shape by the
// algorithm_type tag.
func (c *SessionConfig) UnmarshalJSON(data []byte) error {
	type alias struct {
		ID              string          `json:"id"`
		DisplayName     string          `json:"display_name"`
		SessionType     SessionType     `json:"session_type"`
		LLMName         string          `json:"llm_name"`
		RetrieverName   string          `json:"retriever_name"`
		AlgorithmType   AlgorithmType   `json:"algorithm_type"`
		AlgorithmParams json.RawMessage `json:"algorithm_params"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	params, err := UnmarshalAlgorithmParams(raw.AlgorithmType, raw.AlgorithmParams)
	if err != nil {
		return err
	}

	c.ID = raw.ID
	c.DisplayName = raw.DisplayName
	c.SessionType = raw.SessionType
	c.LLMName = raw.LLMName
	c.RetrieverName = raw.RetrieverName
	c.AlgorithmType = raw.AlgorithmType
	c.AlgorithmParams = params
	return nil
}
