package common

//go:generate go run github.com/dmarkham/enumer -json -type Status -trimprefix Status

// Status is the position of a (scene, process method) pair in the provider's
// publish pipeline. It is never persisted: it is recomputed from the
// provider's current listing on every check.
type Status int

const (
	// StatusNEW: the provider has no pipeline entry for the pair.
	StatusNEW Status = iota
	// StatusPENDING: a publish request is in the pipeline, not yet complete.
	StatusPENDING
	// StatusREADY: processing is complete and a map is available.
	StatusREADY
)
