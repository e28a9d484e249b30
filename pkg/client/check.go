package client

import (
	"context"
	"fmt"
	"net/http"
)

// CheckResult is the outcome of one preflight check.
type CheckResult struct {
	Name   string
	OK     bool
	Detail string
}

// CheckConnection runs preflight diagnostics against the configured
// instance: basic reachability, the id-range filter the harvester
// depends on, and credential acceptance when credentials are set.
// Intended to be run before starting a long harvest.
func (c *Client) CheckConnection(ctx context.Context) []CheckResult {
	var results []CheckResult

	highest, err := c.HighestPostID(ctx)
	if err != nil {
		results = append(results, CheckResult{
			Name:   "API connection",
			Detail: err.Error(),
		})
		// Nothing else can work without connectivity.
		return results
	}
	results = append(results, CheckResult{
		Name:   "API connection",
		OK:     true,
		Detail: fmt.Sprintf("latest post id %d", highest),
	})

	posts, err := c.FetchPosts(ctx, 1, 100, 1)
	switch {
	case err != nil:
		results = append(results, CheckResult{
			Name:   "ID range query",
			Detail: err.Error(),
		})
	case len(posts) == 0:
		results = append(results, CheckResult{
			Name:   "ID range query",
			Detail: "no posts returned for id:1..100",
		})
	default:
		results = append(results, CheckResult{
			Name:   "ID range query",
			OK:     true,
			Detail: fmt.Sprintf("retrieved %d posts, first id %d", len(posts), posts[0].ID),
		})
	}

	if c.config.Login != "" {
		result := CheckResult{Name: "Credentials"}
		if err := c.checkProfile(ctx); err != nil {
			result.Detail = err.Error()
		} else {
			result.OK = true
			result.Detail = fmt.Sprintf("authenticated as %s", c.config.Login)
		}
		results = append(results, result)
	}

	return results
}

// checkProfile verifies the configured credentials against the profile
// endpoint, which rejects invalid API keys with a 401.
func (c *Client) checkProfile(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/profile.json", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.config.Login, c.config.APIKey)

	if err := c.pacer.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ClassifyStatus(resp.StatusCode),
			Message:    resp.Status,
		}
	}
	return nil
}
