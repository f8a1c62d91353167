package validator

import (
	"fmt"

	"github.com/secassist/ai-backend/internal/config"
	"github.com/secassist/ai-backend/internal/entity"
)

// Validator checks request payloads against the deployment allow-lists and
// numeric bounds before anything reaches the orchestrator.
type Validator struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Validator {
	return &Validator{cfg: cfg}
}

// LLM validates a model name against the allow-list.
func (v *Validator) LLM(name string) error {
	if !v.cfg.IsValidLLM(name) {
		return fmt.Errorf("%w: '%s' is not a valid LLM", entity.ErrInvalidArgument, name)
	}
	return nil
}

// Retriever validates an embedding model name against the allow-list.
func (v *Validator) Retriever(name string) error {
	if _, ok := v.cfg.Retriever(name); !ok {
		return fmt.Errorf("%w: '%s' is not a valid retriever", entity.ErrInvalidArgument, name)
	}
	return nil
}

// AlgorithmParams builds the parameter variant matching the algorithm from
// the flat request fields, enforcing presence and bounds.
func (v *Validator) AlgorithmParams(alg entity.AlgorithmType, req entity.AlgorithmParamsRequest) (entity.AlgorithmParams, error) {
	var params entity.AlgorithmParams

	switch alg {
	case entity.AlgorithmSimilarity:
		k, err := requireInt("k", req.K)
		if err != nil {
			return nil, err
		}
		params = &entity.SimilarityParams{K: k}

	case entity.AlgorithmScoreThreshold:
		k, err := requireInt("k", req.K)
		if err != nil {
			return nil, err
		}
		threshold, err := requireFloat("score_threshold", req.ScoreThreshold)
		if err != nil {
			return nil, err
		}
		params = &entity.ThresholdParams{K: k, ScoreThreshold: threshold}

	case entity.AlgorithmMMR:
		fetchK, err := requireInt("fetch_k", req.FetchK)
		if err != nil {
			return nil, err
		}
		lambda, err := requireFloat("lambda_mult", req.LambdaMult)
		if err != nil {
			return nil, err
		}
		params = &entity.MMRParams{FetchK: fetchK, LambdaMult: lambda}

	default:
		return nil, fmt.Errorf("%w: '%s' is not a valid algorithm type", entity.ErrInvalidArgument, alg)
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}

	return params, nil
}

// RequireString enforces a present, non-nil string field.
func RequireString(name string, value *string) (string, error) {
	if value == nil {
		return "", fmt.Errorf("%w: '%s'", entity.ErrMissingField, name)
	}
	return *value, nil
}

func requireInt(name string, value *int) (int, error) {
	if value == nil {
		return 0, fmt.Errorf("%w: '%s'", entity.ErrMissingField, name)
	}
	return *value, nil
}

func requireFloat(name string, value *float64) (float64, error) {
	if value == nil {
		return 0, fmt.Errorf("%w: '%s'", entity.ErrMissingField, name)
	}
	return *value, nil
}
