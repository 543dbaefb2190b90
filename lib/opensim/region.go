// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package opensim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bureau-foundation/lighthouse/lib/netutil"
	"github.com/bureau-foundation/lighthouse/lib/secret"
	"github.com/bureau-foundation/lighthouse/lib/version"
)

// InjectPath is the region endpoint that accepts relayed Matrix text.
const InjectPath = "/matrix/group-message"

// SecretHeader carries the shared bridge secret in both directions.
const SecretHeader = "X-Bridge-Secret"

// RegionClientConfig holds the parameters for NewRegionClient.
type RegionClientConfig struct {
	// RegionURL is the region's base URL.
	RegionURL string
	// Secret is sent as X-Bridge-Secret. Owned by the caller.
	Secret *secret.Buffer
	// HTTPClient defaults to http.DefaultClient. Its Timeout bounds
	// each delivery.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// RegionClient delivers Matrix-originated messages to a region.
type RegionClient struct {
	endpoint   string
	secret     *secret.Buffer
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRegionClient validates config and returns a client.
func NewRegionClient(config RegionClientConfig) (*RegionClient, error) {
	if config.RegionURL == "" {
		return nil, fmt.Errorf("opensim: RegionURL is required")
	}
	if config.Secret == nil {
		return nil, fmt.Errorf("opensim: Secret is required")
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RegionClient{
		endpoint:   strings.TrimRight(config.RegionURL, "/") + InjectPath,
		secret:     config.Secret,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Inject posts request to the region. Any non-2xx status is an error.
func (c *RegionClient) Inject(ctx context.Context, request InjectRequest) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("opensim: encoding inject request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("opensim: creating inject request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("User-Agent", version.UserAgent())
	httpRequest.Header.Set(SecretHeader, c.secret.String())

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return fmt.Errorf("opensim: posting to region: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("opensim: region returned %d: %s", response.StatusCode, netutil.ErrorBody(response.Body))
	}

	c.logger.Debug("injected message into region",
		"group_id", request.GroupUUID,
		"from_name", request.FromName,
	)
	return nil
}
