package estimator

import "fmt"

// InvalidFeatureError reports malformed numeric input. Retrying with the
// same input always fails.
type InvalidFeatureError struct {
	Field  string
	Reason string
}

func (e *InvalidFeatureError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
