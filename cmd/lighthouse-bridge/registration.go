// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/lighthouse/bridge"
	"github.com/bureau-foundation/lighthouse/lib/config"
)

// registration is the appservice registration file a homeserver
// loads to route the bridge's namespace to it.
type registration struct {
	ID              string                 `yaml:"id"`
	URL             string                 `yaml:"url"`
	ASToken         string                 `yaml:"as_token"`
	HSToken         string                 `yaml:"hs_token"`
	SenderLocalpart string                 `yaml:"sender_localpart"`
	RateLimited     bool                   `yaml:"rate_limited"`
	Namespaces      registrationNamespaces `yaml:"namespaces"`
}

type registrationNamespaces struct {
	Users   []namespaceRule `yaml:"users"`
	Aliases []namespaceRule `yaml:"aliases"`
	Rooms   []namespaceRule `yaml:"rooms"`
}

type namespaceRule struct {
	Exclusive bool   `yaml:"exclusive"`
	Regex     string `yaml:"regex"`
}

func buildRegistration(cfg *config.Config, secrets *config.Secrets, namespace bridge.Namespace) registration {
	return registration{
		ID:              cfg.Matrix.AppserviceID,
		URL:             "http://" + cfg.AppserviceAddress(),
		ASToken:         secrets.ASToken.String(),
		HSToken:         secrets.HSToken.String(),
		SenderLocalpart: namespace.Bot().Localpart(),
		RateLimited:     false,
		Namespaces: registrationNamespaces{
			Users: []namespaceRule{
				{Exclusive: true, Regex: "@" + regexp.QuoteMeta(namespace.Bot().Localpart()) + ":" + regexp.QuoteMeta(namespace.Server().String())},
				{Exclusive: true, Regex: namespace.UserRegex()},
			},
			Aliases: []namespaceRule{
				{Exclusive: true, Regex: namespace.AliasRegex()},
			},
			Rooms: []namespaceRule{},
		},
	}
}

// writeRegistration prints the registration YAML.
func writeRegistration(w io.Writer, cfg *config.Config, secrets *config.Secrets, namespace bridge.Namespace) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(buildRegistration(cfg, secrets, namespace)); err != nil {
		return fmt.Errorf("encoding registration: %w", err)
	}
	return encoder.Close()
}
