package llm

import (
	"strings"
	"time"
)

// TaskType selects a model class for a call.
type TaskType string

const (
	// TaskLight covers short, cheap work: summaries and classification.
	TaskLight TaskType = "light"
	// TaskHeavy covers chat-grade work with longer context. The default.
	TaskHeavy TaskType = "heavy"
)

// ModelParams are the per-class call parameters applied to a request unless
// the request overrides them.
type ModelParams struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// lightKeywords match operation names that belong to the light class.
var lightKeywords = []string{
	"summary", "summarize", "classif", "ticket", "simple", "extract", "label",
}

// ClassifyOperation maps an operation name to a task class by keyword.
// Unknown operations default to heavy.
func ClassifyOperation(operation string) TaskType {
	op := strings.ToLower(operation)
	for _, kw := range lightKeywords {
		if strings.Contains(op, kw) {
			return TaskLight
		}
	}
	return TaskHeavy
}

// Plan holds the two model classes.
type Plan struct {
	Light ModelParams
	Heavy ModelParams
}

// DefaultPlan builds a plan from the configured model names. The global
// timeout bounds light calls; heavy calls get four times that.
func DefaultPlan(lightModel, heavyModel string, globalTimeout time.Duration) Plan {
	if globalTimeout <= 0 {
		globalTimeout = 5 * time.Second
	}
	return Plan{
		Light: ModelParams{
			Model:       lightModel,
			MaxTokens:   1024,
			Temperature: 0.1,
			Timeout:     globalTimeout,
		},
		Heavy: ModelParams{
			Model:       heavyModel,
			MaxTokens:   4096,
			Temperature: 0.3,
			Timeout:     4 * globalTimeout,
		},
	}
}

// For returns the params for a class.
func (p Plan) For(t TaskType) ModelParams {
	if t == TaskLight {
		return p.Light
	}
	return p.Heavy
}
