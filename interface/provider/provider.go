package provider

import (
	"context"

	"github.com/terrawatch/landsat-tracker/common"
)

// ImageryProvider is everything the tracker needs from the imagery platform:
// scene discovery, pipeline status and publication requests.
type ImageryProvider interface {
	// SearchScenes resolves the criteria to the identifier of one scene.
	SearchScenes(ctx context.Context, criteria common.SearchCriteria) (string, error)
	// SceneStatus derives the pipeline position of (sceneID, process) and,
	// when ready, the published map it produced.
	SceneStatus(ctx context.Context, sceneID, process string) (common.Status, *common.PublishedMap, error)
	// Publish asks the provider to run the process method on the scene.
	// Best effort: completion is only observable through SceneStatus.
	Publish(ctx context.Context, sceneID, process, email string)
}

// NoMatchError: the search returned no scene for the criteria.
type NoMatchError struct {
	Query string
}

func (e NoMatchError) Error() string {
	return "no scene matches query " + e.Query
}

// TransportError: the provider could not be reached or answered with an
// error status. Unwrap exposes the cause so callers can classify it.
type TransportError struct {
	Op  string
	Err error
}

func (e TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e TransportError) Unwrap() error {
	return e.Err
}

// UnknownStatusError: the provider returned a pipeline entry the status
// mapping does not recognize. The chain that observes it stops.
type UnknownStatusError struct {
	SceneID string
	Detail  string
}

func (e UnknownStatusError) Error() string {
	return "unknown status for scene " + e.SceneID + ": " + e.Detail
}
