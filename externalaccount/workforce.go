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

package externalaccount

import "github.com/external-secrets/gauth/auth"

// NewWorkforcePool is a convenience wrapper over New for the workforce
// identity federation vector of spec.md §4.6: a human user authenticating
// through an external IdP against a workforce pool rather than a
// workload identity pool. userProject is billed for the quota-consuming
// calls the resulting credential makes and must accompany a workforce
// pool audience.
func NewWorkforcePool(cfg *Config, userProject string) (*auth.OAuth2Credentials, error) {
	if !IsWorkforcePoolAudience(cfg.Audience) {
		return nil, &auth.ConfigError{Message: "NewWorkforcePool requires a workforce pool audience"}
	}
	cfg.WorkforcePoolUserProject = userProject
	return New(cfg, nil)
}
