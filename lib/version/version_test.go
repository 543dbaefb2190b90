// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"strings"
	"testing"
)

func TestInfoMarksDirtyBuilds(t *testing.T) {
	savedCommit, savedDirty := GitCommit, GitDirty
	t.Cleanup(func() { GitCommit, GitDirty = savedCommit, savedDirty })

	GitCommit = "abc1234"
	GitDirty = "false"
	if info := Info(); !strings.Contains(info, "(abc1234,") {
		t.Errorf("clean Info() = %q", info)
	}

	GitDirty = "true"
	if info := Info(); !strings.Contains(info, "abc1234-dirty") {
		t.Errorf("dirty Info() = %q", info)
	}
}

func TestPrint(t *testing.T) {
	var buffer bytes.Buffer
	Print(&buffer, "lighthouse-bridge")
	output := buffer.String()
	if !strings.HasPrefix(output, "lighthouse-bridge "+Version) {
		t.Errorf("Print output = %q", output)
	}
	if !strings.Contains(output, "Go: ") {
		t.Errorf("Print output missing toolchain line: %q", output)
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); got != "lighthouse-bridge/"+Version {
		t.Errorf("UserAgent() = %q", got)
	}
}
