package provider

import (
	"context"
	"encoding/json"
	"fmt"
	neturl "net/url"
	"strings"
	"time"

	"github.com/terrawatch/landsat-tracker/common"
	"github.com/terrawatch/landsat-tracker/service"
	"github.com/terrawatch/landsat-tracker/service/log"
)

const (
	searchPath  = "/search"
	scenesPath  = "/scenes"
	publishPath = "/publish"
)

// Client talks to the imagery platform's REST API.
type Client struct {
	BaseURL   string
	Satellite string
}

func NewClient(baseURL, satellite string) *Client {
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Satellite: satellite,
	}
}

type searchResponse struct {
	Results []struct {
		SceneID string `json:"sceneID"`
	} `json:"results"`
}

type scenesResponse struct {
	Count   int `json:"count"`
	Results []struct {
		ProcessMethod struct {
			Code string `json:"code"`
		} `json:"process_method"`
		Ready bool   `json:"ready"`
		MapID string `json:"map_id"`
	} `json:"results"`
}

// SearchScenes builds the corner-constraint query for the criteria and
// returns the identifier of the first matching scene.
func (c *Client) SearchScenes(ctx context.Context, criteria common.SearchCriteria) (string, error) {
	query := buildSceneQuery(criteria)
	q := neturl.Values{}
	q.Set("search", query)
	q.Set("limit", "1")

	body, err := service.GetBody(ctx, c.BaseURL+searchPath+"?"+q.Encode())
	if err != nil {
		return "", TransportError{Op: "SearchScenes", Err: err}
	}
	search := searchResponse{}
	if err := json.Unmarshal(body, &search); err != nil {
		return "", fmt.Errorf("SearchScenes.parse body: %w", err)
	}
	if len(search.Results) == 0 {
		return "", NoMatchError{Query: query}
	}
	sceneID := strings.TrimSpace(search.Results[0].SceneID)
	if sceneID == "" {
		return "", NoMatchError{Query: query}
	}
	return sceneID, nil
}

// buildSceneQuery expresses "the image center lies inside the scene" as
// constraints on the scene's corner coordinates, plus the acquisition window.
func buildSceneQuery(criteria common.SearchCriteria) string {
	ext := criteria.Extent()
	parameters := []string{
		fmt.Sprintf("upperLeftCornerLatitude:[%f TO 1000]", ext.MaxY()),
		fmt.Sprintf("lowerRightCornerLatitude:[-1000 TO %f]", ext.MinY()),
		fmt.Sprintf("lowerLeftCornerLongitude:[-1000 TO %f]", ext.MinX()),
		fmt.Sprintf("upperRightCornerLongitude:[%f TO 1000]", ext.MaxX()),
		fmt.Sprintf("acquisitionDate:[%s TO %s]",
			criteria.DateFrom.Format("2006-01-02"), criteria.DateTo.Format("2006-01-02")),
	}
	return strings.Join(parameters, " AND ")
}

// SceneStatus derives the pipeline position of (sceneID, process) from the
// provider's current listing. The listing is the source of truth: entries may
// appear or complete through channels outside this process, so nothing is
// tracked locally between calls.
func (c *Client) SceneStatus(ctx context.Context, sceneID, process string) (common.Status, *common.PublishedMap, error) {
	q := neturl.Values{}
	q.Set("sceneID", sceneID)

	body, err := service.GetBody(ctx, c.BaseURL+scenesPath+"?"+q.Encode())
	if err != nil {
		return common.StatusNEW, nil, TransportError{Op: "SceneStatus", Err: err}
	}
	listing := scenesResponse{}
	if err := json.Unmarshal(body, &listing); err != nil {
		return common.StatusNEW, nil, fmt.Errorf("SceneStatus.parse body: %w", err)
	}

	for _, entry := range listing.Results {
		if entry.ProcessMethod.Code != process {
			continue
		}
		if !entry.Ready {
			return common.StatusPENDING, nil, nil
		}
		if entry.MapID == "" {
			return common.StatusNEW, nil, UnknownStatusError{SceneID: sceneID, Detail: "entry ready without map_id"}
		}
		return common.StatusREADY, &common.PublishedMap{
			SceneID:    sceneID,
			MapID:      entry.MapID,
			ObservedAt: time.Now(),
		}, nil
	}
	return common.StatusNEW, nil, nil
}

// Publish asks the provider to enqueue the process method for the scene,
// tagged with a notification address. Best effort: a refused request is
// logged, never returned, and completion is observed later via SceneStatus.
func (c *Client) Publish(ctx context.Context, sceneID, process, email string) {
	form := neturl.Values{}
	form.Set("satellite", c.Satellite)
	form.Set("sceneID", sceneID)
	form.Set("email", email)
	form.Set("process", process)

	status, err := service.PostForm(ctx, c.BaseURL+publishPath, form)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("publish %s/%s: %v", sceneID, process, err)
		return
	}
	if status < 200 || status >= 300 {
		log.Logger(ctx).Sugar().Warnf("publish %s/%s: provider answered %d", sceneID, process, status)
	}
}
