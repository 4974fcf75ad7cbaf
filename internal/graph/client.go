// Package graph talks to the social-graph collaborator. Only the
// friend-id set is consumed here, and only for presence fan-out, so the
// client is wrapped in a circuit breaker and callers fail open.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    32,
		IdleConnTimeout: 90 * time.Second,
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "social-graph",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Transport: tr, Timeout: timeout},
		breaker: cb,
		log:     log,
	}
}

type friendsResponse struct {
	Friends []string `json:"friends"`
}

// Friends returns the user's friend-id set. The call retries briefly on
// transient failures and trips the breaker under sustained ones; either
// way the caller treats an error as an empty set.
func (c *Client) Friends(ctx context.Context, userID string) ([]string, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.fetchFriends(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (c *Client) fetchFriends(ctx context.Context, userID string) ([]string, error) {
	url := fmt.Sprintf("%s/v1/users/%s/friends", c.baseURL, userID)

	var friends []string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("graph service returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("graph service returned %d", resp.StatusCode))
		}
		var body friendsResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return backoff.Permanent(err)
		}
		friends = body.Friends
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return friends, nil
}
