package common

import (
	"time"

	"github.com/go-spatial/geom"
)

// SearchCriteria is the query for the tracked acquisition: an image center,
// a fixed acquisition window and the process method to run. Built once at
// startup and never mutated.
type SearchCriteria struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	DateFrom  time.Time `json:"date_from"`
	DateTo    time.Time `json:"date_to"`
	Process   string    `json:"process"`
}

// Extent returns the degenerate extent at the image center. Scene corner
// constraints are expressed against this point: the scene's upper-left corner
// must lie north-west of it and its lower-right corner south-east.
func (c SearchCriteria) Extent() geom.Extent {
	return geom.Extent{c.Longitude, c.Latitude, c.Longitude, c.Latitude}
}

// PublishedMap references one completed, renderable product.
type PublishedMap struct {
	SceneID    string    `json:"scene_id"`
	MapID      string    `json:"map_id"`
	ObservedAt time.Time `json:"observed_at"`
}
