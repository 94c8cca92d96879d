package adapters

// GenericName names the pass-through adapter
const GenericName = "generic"

// GenericAdapter is the fallback adapter for plain text
type GenericAdapter struct{}

// NewGenericAdapter creates a new generic adapter
func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{}
}

// Name returns the adapter name
func (a *GenericAdapter) Name() string {
	return GenericName
}

// CanHandle always returns true (fallback adapter)
func (a *GenericAdapter) CanHandle(hint Hint, body string) bool {
	return true
}

// Extract returns the body unchanged
func (a *GenericAdapter) Extract(body string) (string, error) {
	return body, nil
}
