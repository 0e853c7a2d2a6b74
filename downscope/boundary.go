/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package downscope implements Credential Access Boundary token
// derivation (spec.md §4.8): restricting what an already-issued access
// token can do, either by asking STS for a narrower token (server-side)
// or by locally encoding the restriction into an intermediary token
// (client-side, in the clientside subpackage).
package downscope

import "github.com/external-secrets/gauth/auth"

// AvailabilityCondition is an optional CEL expression further restricting
// when an AccessBoundaryRule applies (e.g. to specific object names).
type AvailabilityCondition struct {
	Expression  string
	Title       string
	Description string
}

// AccessBoundaryRule restricts a downscoped token to availablePermissions
// on availableResource, optionally gated by an AvailabilityCondition.
type AccessBoundaryRule struct {
	AvailableResource     string
	AvailablePermissions  []string
	AvailabilityCondition *AvailabilityCondition
}

// AccessBoundary is the full set of rules a downscoped token is
// restricted to; STS and the client-side factory both require at least
// one rule.
type AccessBoundary struct {
	AccessBoundaryRules []AccessBoundaryRule
}

// Validate enforces the non-empty-rule-set invariant shared by both the
// server-side and client-side derivations.
func (b *AccessBoundary) Validate() error {
	if b == nil || len(b.AccessBoundaryRules) == 0 {
		return &auth.ConfigError{Message: "access boundary must contain at least one rule"}
	}
	for _, r := range b.AccessBoundaryRules {
		if r.AvailableResource == "" {
			return &auth.ConfigError{Message: "access boundary rule missing availableResource"}
		}
		if len(r.AvailablePermissions) == 0 {
			return &auth.ConfigError{Message: "access boundary rule has no availablePermissions"}
		}
	}
	return nil
}
