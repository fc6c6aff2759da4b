package twitter

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/blackmichael/twitter-crawler/internal/domain"
)

type advancedSearchResponse struct {
	Tweets      []apiTweet `json:"tweets"`
	HasNextPage bool       `json:"has_next_page"`
	NextCursor  *string    `json:"next_cursor"`
}

type tweetsResponse struct {
	Tweets []apiTweet `json:"tweets"`
}

// SearchPosts runs an advanced search query and returns the first page of
// results.
func (c *Client) SearchPosts(ctx context.Context, query string, order domain.SearchOrder) ([]domain.FetchedPost, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is required")
	}
	if order == "" {
		order = domain.SearchLatest
	}

	params := url.Values{
		"query":     {query},
		"queryType": {string(order)},
	}

	var resp advancedSearchResponse
	if err := c.get(ctx, endpointAdvancedSearch, params, &resp); err != nil {
		return nil, err
	}
	return convertTweets(endpointAdvancedSearch, resp.Tweets, c.now())
}

// GetPostsByIDs fetches up to 100 posts by id. Posts the provider cannot
// return come back as empty entries and are dropped.
func (c *Client) GetPostsByIDs(ctx context.Context, ids []int64) ([]domain.FetchedPost, error) {
	if err := checkBatch(endpointTweetsByIDs, ids); err != nil {
		return nil, err
	}

	var resp tweetsResponse
	if err := c.get(ctx, endpointTweetsByIDs, url.Values{"tweet_ids": {joinIDs(ids)}}, &resp); err != nil {
		return nil, err
	}

	tweets := make([]apiTweet, 0, len(resp.Tweets))
	for _, t := range resp.Tweets {
		if t.ID != "" {
			tweets = append(tweets, t)
		}
	}
	return convertTweets(endpointTweetsByIDs, tweets, c.now())
}

func convertTweets(endpoint string, tweets []apiTweet, now time.Time) ([]domain.FetchedPost, error) {
	posts := make([]domain.FetchedPost, 0, len(tweets))
	for i := range tweets {
		p, err := tweets[i].toFetchedPost(endpoint, now)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, nil
}
