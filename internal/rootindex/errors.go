package rootindex

type rootindexError string

func (e rootindexError) Error() string { return string(e) }

const (
	errCycleDetected rootindexError = "rootindex: bundledIn cycle detected"
	errDepthExceeded rootindexError = "rootindex: bundle nesting depth exceeded"
	errNotFound      rootindexError = "rootindex: transaction not found"
)
