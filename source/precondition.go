package source

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gofhir/fhirpath"
	"github.com/gofhir/fhirpath/types"
)

// ErrPreconditionFailed is returned when a document does not satisfy its
// codelist's precondition.
var ErrPreconditionFailed = errors.New("source precondition not satisfied")

// Preconditions evaluates FHIRPath guards against source documents.
// Compiled expressions are cached; it is safe for concurrent use.
type Preconditions struct {
	mu    sync.RWMutex
	cache map[string]*fhirpath.Expression
}

// NewPreconditions creates a new precondition evaluator.
func NewPreconditions() *Preconditions {
	return &Preconditions{
		cache: make(map[string]*fhirpath.Expression),
	}
}

// Check evaluates expression against document. An empty expression always
// holds. The result follows FHIRPath truthiness: an empty collection is
// false, a single boolean is its value, anything else is true.
func (p *Preconditions) Check(expression string, document []byte) error {
	if expression == "" {
		return nil
	}

	compiled, err := p.getOrCompile(expression)
	if err != nil {
		return fmt.Errorf("failed to compile FHIRPath expression '%s': %w", expression, err)
	}

	result, err := compiled.Evaluate(document)
	if err != nil {
		return fmt.Errorf("failed to evaluate FHIRPath expression '%s': %w", expression, err)
	}

	if !toBool(result) {
		return fmt.Errorf("%w: %s", ErrPreconditionFailed, expression)
	}
	return nil
}

// getOrCompile returns a cached compiled expression or compiles a new one.
func (p *Preconditions) getOrCompile(expression string) (*fhirpath.Expression, error) {
	p.mu.RLock()
	compiled, ok := p.cache[expression]
	p.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := fhirpath.Compile(expression)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[expression] = compiled
	p.mu.Unlock()
	return compiled, nil
}

// CacheSize returns the number of cached expressions.
func (p *Preconditions) CacheSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.cache)
}

func toBool(result types.Collection) bool {
	if len(result) == 0 {
		return false
	}
	if len(result) == 1 {
		if b, ok := result[0].(types.Boolean); ok {
			return b.Bool()
		}
	}
	return true
}

var defaultPreconditions = NewPreconditions()

// CheckPrecondition evaluates expression against document with a shared
// evaluator.
func CheckPrecondition(expression string, document []byte) error {
	return defaultPreconditions.Check(expression, document)
}
