package twitter

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/blackmichael/twitter-crawler/internal/domain"
)

type userInfoResponse struct {
	Status string   `json:"status"`
	Msg    string   `json:"msg"`
	Data   *apiUser `json:"data"`
}

type batchUserInfoResponse struct {
	Status string    `json:"status"`
	Msg    string    `json:"msg"`
	Users  []apiUser `json:"users"`
}

// GetProfileByUsername fetches one account by username. It returns nil when
// the provider reports the user as not found.
func (c *Client) GetProfileByUsername(ctx context.Context, username string) (*domain.Profile, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, errors.New("username is required")
	}

	var resp userInfoResponse
	err := c.get(ctx, endpointUserInfo, url.Values{"userName": {username}}, &resp)
	if err != nil {
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) && isUserNotFound(apiErr.Body) {
			return nil, nil
		}
		return nil, err
	}

	if resp.Status != "success" || resp.Data == nil {
		return nil, nil
	}

	profile, err := resp.Data.toProfile(endpointUserInfo)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// BatchGetProfiles fetches up to 100 accounts by id in one request. The
// provider bills bulk requests at a lower per-account rate.
func (c *Client) BatchGetProfiles(ctx context.Context, ids []int64) ([]domain.Profile, error) {
	if err := checkBatch(endpointUserBatchInfo, ids); err != nil {
		return nil, err
	}

	var resp batchUserInfoResponse
	if err := c.get(ctx, endpointUserBatchInfo, url.Values{"userIds": {joinIDs(ids)}}, &resp); err != nil {
		return nil, err
	}

	profiles := make([]domain.Profile, 0, len(resp.Users))
	for i := range resp.Users {
		p, err := resp.Users[i].toProfile(endpointUserBatchInfo)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func isUserNotFound(body string) bool {
	return strings.Contains(strings.ToLower(body), "user not found")
}
