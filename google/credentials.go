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

// Package google assembles the concrete credential kinds of spec.md §4.7
// (service account, user, impersonated, GCE, ID-token) on top of the auth,
// sts, iamcred, and externalaccount packages, and resolves Application
// Default Credentials (spec.md §4.9) by dispatching on a JSON "type"
// field (spec.md §6).
package google

import "github.com/external-secrets/gauth/auth"

// CloudPlatformScope is the scope ADC falls back to when a caller asks for
// credentials without naming any scope explicitly.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// checkUniverseDomain enforces spec.md §4.2's universe-domain invariant: a
// wrapper credential's universe domain must equal its source's unless left
// empty (in which case it inherits the source's).
func checkUniverseDomain(explicit, source string) (string, error) {
	if explicit == "" {
		return source, nil
	}
	if explicit != source {
		return "", &auth.ConfigError{Message: "universe domain " + explicit + " does not match source credential's " + source}
	}
	return explicit, nil
}
