package facebookclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client talks to the Facebook Marketing API custom-audiences surface
type Client interface {
	ReplaceUsers(ctx context.Context, audienceRemoteName string, size int64) (*PushResponse, error)
	AddUsers(ctx context.Context, audienceRemoteName string, size int64) (*PushResponse, error)
	Ping(ctx context.Context) error
}

// PushResponse is the platform's answer to an audience push
type PushResponse struct {
	AudienceID   string  `json:"audience_id"`
	SessionID    string  `json:"session_id"`
	NumReceived  int64   `json:"num_received"`
	NumInvalid   int64   `json:"num_invalid_entries"`
	MatchRateEst float64 `json:"match_rate_estimate"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type FacebookClient struct {
	Cfg        *config.Config
	HTTPClient *http.Client
}

func NewClient(cfg *config.Config) Client {
	return &FacebookClient{
		Cfg: cfg,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ReplaceUsers starts a replace session on the remote custom audience
func (c *FacebookClient) ReplaceUsers(ctx context.Context, audienceRemoteName string, size int64) (*PushResponse, error) {
	return c.pushUsers(ctx, audienceRemoteName, size, "usersreplace")
}

// AddUsers appends users to the remote custom audience
func (c *FacebookClient) AddUsers(ctx context.Context, audienceRemoteName string, size int64) (*PushResponse, error) {
	return c.pushUsers(ctx, audienceRemoteName, size, "users")
}

func (c *FacebookClient) pushUsers(ctx context.Context, audienceRemoteName string, size int64, operation string) (*PushResponse, error) {
	endpoint := fmt.Sprintf("%s/act_%s/%s",
		c.Cfg.Facebook.URL, c.Cfg.Facebook.AdAccountID, operation)

	payload := map[string]any{
		"name":        audienceRemoteName,
		"num_entries": size,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encoding push payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "building push request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.URL.RawQuery = url.Values{"access_token": {c.Cfg.Facebook.AccessToken}}.Encode()

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "calling facebook api")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading facebook response")
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error.Message != "" {
			logrus.WithFields(logrus.Fields{
				"status": resp.StatusCode,
				"code":   apiErr.Error.Code,
				"type":   apiErr.Error.Type,
			}).Error("facebook: audience push rejected")
			return nil, errors.Errorf("facebook api error %d: %s", apiErr.Error.Code, apiErr.Error.Message)
		}
		return nil, errors.Errorf("facebook api returned status %d", resp.StatusCode)
	}

	var pushResp PushResponse
	if err := json.Unmarshal(raw, &pushResp); err != nil {
		return nil, errors.Wrap(err, "decoding facebook response")
	}

	return &pushResp, nil
}

// Ping verifies the access token against the ad account
func (c *FacebookClient) Ping(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/act_%s", c.Cfg.Facebook.URL, c.Cfg.Facebook.AdAccountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "building ping request")
	}
	req.URL.RawQuery = url.Values{
		"access_token": {c.Cfg.Facebook.AccessToken},
		"fields":       {"account_id,account_status"},
	}.Encode()

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling facebook api")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errors.Errorf("facebook api returned status %d", resp.StatusCode)
	}

	return nil
}
