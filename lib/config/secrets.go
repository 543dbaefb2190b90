// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/lighthouse/lib/secret"
)

// Secrets holds the bridge's shared secrets in locked memory.
type Secrets struct {
	ASToken      *secret.Buffer
	HSToken      *secret.Buffer
	BridgeSecret *secret.Buffer
}

// OpenSecrets copies each secret into a secret.Buffer, reading *_file
// paths where given. The caller must Close the result.
func (c *Config) OpenSecrets() (*Secrets, error) {
	secrets := &Secrets{}
	var err error
	if secrets.ASToken, err = openSecret("matrix.as_token", c.Matrix.ASToken, c.Matrix.ASTokenFile); err != nil {
		secrets.Close()
		return nil, err
	}
	if secrets.HSToken, err = openSecret("matrix.hs_token", c.Matrix.HSToken, c.Matrix.HSTokenFile); err != nil {
		secrets.Close()
		return nil, err
	}
	if secrets.BridgeSecret, err = openSecret("opensim.bridge_secret", c.OpenSim.BridgeSecret, c.OpenSim.BridgeSecretFile); err != nil {
		secrets.Close()
		return nil, err
	}
	if secrets.ASToken.Equal(secrets.HSToken) {
		secrets.Close()
		return nil, errors.New("config: matrix.as_token and matrix.hs_token must differ")
	}
	return secrets, nil
}

// Close releases every buffer. Safe on a partially opened value.
func (s *Secrets) Close() {
	for _, buffer := range []*secret.Buffer{s.ASToken, s.HSToken, s.BridgeSecret} {
		if buffer != nil {
			buffer.Close()
		}
	}
}

func openSecret(name, inline, file string) (*secret.Buffer, error) {
	var buffer *secret.Buffer
	var err error
	if file != "" {
		buffer, err = secret.ReadFromPath(file)
	} else {
		buffer, err = secret.NewFromString(inline)
	}
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", name, err)
	}
	if buffer.String() == Placeholder {
		buffer.Close()
		return nil, fmt.Errorf("config: %s is still %s", name, Placeholder)
	}
	return buffer, nil
}
