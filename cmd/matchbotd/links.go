// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"net/url"
	"strings"
)

// linkValidator accepts https links, optionally restricted to an
// allowlist of hosts. The canonical form is the trimmed original; the
// validator never rewrites query or fragment parts, since game invite
// links carry their tokens there.
type linkValidator struct {
	hosts map[string]bool
}

func newLinkValidator(allowedHosts []string) *linkValidator {
	v := &linkValidator{hosts: make(map[string]bool, len(allowedHosts))}
	for _, h := range allowedHosts {
		v.hosts[strings.ToLower(h)] = true
	}
	return v
}

func (v *linkValidator) Validate(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("link is empty")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("link does not parse: %w", err)
	}
	if parsed.Scheme != "https" {
		return "", fmt.Errorf("link must use https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("link has no host")
	}
	if len(v.hosts) > 0 && !v.hosts[strings.ToLower(parsed.Hostname())] {
		return "", fmt.Errorf("link host %q is not allowed", parsed.Hostname())
	}
	return trimmed, nil
}
