package batch

import (
	"encoding/json"
	"fmt"

	"github.com/teemow/inboxdigest/internal/session"
)

// MaxItems bounds the number of entities a single bulk tool call may touch.
const MaxItems = 100

// Result statuses. A mutation is "accepted" once its optimistic override is
// in place; the backend outcome arrives later as a notification.
const (
	StatusAccepted = "accepted"
	StatusError    = "error"
)

// Result is the outcome for one item of a bulk action.
type Result struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	OverrideID string `json:"overrideId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Summary aggregates the results of a bulk action.
type Summary struct {
	Total    int      `json:"total"`
	Accepted int      `json:"accepted"`
	Failed   int      `json:"failed"`
	Results  []Result `json:"results"`
}

// ParseStringOrArray parses a parameter that is either a single string or an
// array of strings. Duplicates are dropped, keeping the first occurrence.
func ParseStringOrArray(param any, paramName string) ([]string, error) {
	if param == nil {
		return nil, fmt.Errorf("%s is required", paramName)
	}

	var items []string
	switch v := param.(type) {
	case string:
		if v == "" {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		items = []string{v}
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		seen := make(map[string]bool, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", paramName, i)
			}
			if str == "" {
				return nil, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
			}
			if !seen[str] {
				seen[str] = true
				items = append(items, str)
			}
		}
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", paramName)
	}

	if len(items) > MaxItems {
		return nil, fmt.Errorf("%s has %d items, at most %d are allowed", paramName, len(items), MaxItems)
	}
	return items, nil
}

// FromActionResults converts session bulk results.
func FromActionResults(results []session.ActionResult) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			out = append(out, NewErrorResult(r.ID, r.Err))
			continue
		}
		out = append(out, Result{ID: r.ID, Status: StatusAccepted, OverrideID: r.OverrideID})
	}
	return out
}

// Summarize counts accepted and failed results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results), Results: results}
	for _, r := range results {
		if r.Status == StatusAccepted {
			s.Accepted++
		} else {
			s.Failed++
		}
	}
	return s
}

// FormatResults renders results as indented JSON.
func FormatResults(results []Result) string {
	b, _ := json.MarshalIndent(Summarize(results), "", "  ")
	return string(b)
}

// NewErrorResult creates an error result.
func NewErrorResult(id string, err error) Result {
	return Result{ID: id, Status: StatusError, Error: err.Error()}
}
