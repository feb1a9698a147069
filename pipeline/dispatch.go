package pipeline

import (
	"fmt"

	"github.com/hazyhaar/regcheck/classify"
	"github.com/hazyhaar/regcheck/verifier"
)

// Route binds a document kind to the verifier that checks it.
type Route struct {
	Verifier verifier.Verifier
	// Throttled routes share the run's Throttle.
	Throttled bool
}

// Routes is the dispatch table from classification to verifier.
type Routes map[classify.Kind]Route

// Validate reports every routable kind that has no verifier.
func (r Routes) Validate() error {
	for _, k := range classify.Kinds {
		if rt, ok := r[k]; !ok || rt.Verifier == nil {
			return fmt.Errorf("%w: %s", ErrNoRoute, k)
		}
	}
	return nil
}
