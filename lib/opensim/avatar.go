// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package opensim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/lighthouse/lib/netutil"
	"github.com/bureau-foundation/lighthouse/lib/version"
)

// AvatarPlaceholder is replaced by the member UUID in the avatar URL
// template.
const AvatarPlaceholder = "{uuid}"

// ErrAvatarUnavailable means the member has no usable profile image.
var ErrAvatarUnavailable = errors.New("opensim: avatar unavailable")

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// AvatarSourceConfig holds the parameters for NewAvatarSource.
type AvatarSourceConfig struct {
	// URLTemplate contains {uuid}, e.g. "https://grid.example/av.php?uuid={uuid}.png".
	URLTemplate string
	// MaxBytes bounds a downloaded image. Zero uses 8 MiB.
	MaxBytes   int64
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// AvatarSource fetches member profile images as PNG.
type AvatarSource struct {
	template   string
	maxBytes   int64
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAvatarSource validates config and returns a source.
func NewAvatarSource(config AvatarSourceConfig) (*AvatarSource, error) {
	if !strings.Contains(config.URLTemplate, AvatarPlaceholder) {
		return nil, fmt.Errorf("opensim: avatar URL template %q has no %s", config.URLTemplate, AvatarPlaceholder)
	}
	maxBytes := config.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 8 << 20
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AvatarSource{
		template:   config.URLTemplate,
		maxBytes:   maxBytes,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// URL returns the image URL for memberID.
func (s *AvatarSource) URL(memberID uuid.UUID) string {
	return strings.ReplaceAll(s.template, AvatarPlaceholder, memberID.String())
}

// Fetch downloads the member's image. Every failure, including a
// response that is not a PNG, wraps ErrAvatarUnavailable; the image
// host answers 200 with a text body when a member has no picture.
func (s *AvatarSource) Fetch(ctx context.Context, memberID uuid.UUID) ([]byte, error) {
	imageURL := s.URL(memberID)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAvatarUnavailable, err)
	}
	request.Header.Set("User-Agent", version.UserAgent())
	request.Header.Set("Accept", "image/png")

	response, err := s.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", ErrAvatarUnavailable, imageURL, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrAvatarUnavailable, imageURL, response.StatusCode)
	}

	data, err := netutil.ReadLimited(response.Body, s.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrAvatarUnavailable, imageURL, err)
	}
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, fmt.Errorf("%w: %s did not return a PNG (%d bytes)", ErrAvatarUnavailable, imageURL, len(data))
	}
	return data, nil
}
