/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package models holds the data shared between provisioning stages.
package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// OSIdentity describes the operating system of the host being provisioned.
type OSIdentity struct {
	Platform        string `json:"platform"`         // e.g. "debian"
	PlatformVersion string `json:"platform_version"` // e.g. "12.5"
	KernelArch      string `json:"kernel_arch"`      // e.g. "aarch64"
}

// String renders the identity as shown to the operator.
func (o OSIdentity) String() string {
	parts := make([]string, 0, 3)

	for _, p := range []string{o.Platform, o.PlatformVersion} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}

	if len(parts) == 0 {
		parts = append(parts, "unknown")
	}

	if o.KernelArch != "" {
		return fmt.Sprintf("%s (%s)", strings.Join(parts, " "), o.KernelArch)
	}

	return strings.Join(parts, " ")
}

// ExecutionUser is the account the application runs as and owns the checkout.
// When the provisioner is invoked through sudo this is the invoking user, not root.
type ExecutionUser struct {
	Name    string `json:"name"`
	UID     int    `json:"uid"`
	GID     int    `json:"gid"`
	HomeDir string `json:"home_dir"`
}

// HostEnvironment is discovered once at the start of a run and is read-only afterwards.
type HostEnvironment struct {
	OS         OSIdentity    `json:"os"`
	User       ExecutionUser `json:"user"`
	InstallDir string        `json:"install_dir"`
	RepoName   string        `json:"repo_name"`
}

// RepoRoot is the directory the application repository is materialized into.
func (h *HostEnvironment) RepoRoot() string {
	if h.InstallDir == "" || h.RepoName == "" {
		return ""
	}

	return filepath.Join(h.InstallDir, h.RepoName)
}
