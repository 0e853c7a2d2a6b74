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

package clientside

import (
	"encoding/json"

	"google.golang.org/protobuf/proto"

	"github.com/external-secrets/gauth/auth"
	"github.com/external-secrets/gauth/downscope"
)

// boundaryRecord is the serialized form of an AccessBoundary encrypted
// into a client-side downscoped token (spec.md §4.8 step 1): each rule's
// availability condition, if any, is embedded as its compiled CEL AST
// proto rather than the source expression string.
type boundaryRecord struct {
	Rules []ruleRecord `json:"rules"`
}

type ruleRecord struct {
	AvailableResource     string `json:"availableResource"`
	AvailablePermissions  []string `json:"availablePermissions"`
	CompiledCondition     []byte `json:"compiledCondition,omitempty"`
}

// serializeBoundary compiles every rule's availability condition and
// renders the record to bytes for AEAD encryption.
func serializeBoundary(b *downscope.AccessBoundary) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	rec := boundaryRecord{Rules: make([]ruleRecord, 0, len(b.AccessBoundaryRules))}
	for _, rule := range b.AccessBoundaryRules {
		rr := ruleRecord{
			AvailableResource:    rule.AvailableResource,
			AvailablePermissions: append([]string(nil), rule.AvailablePermissions...),
		}
		if rule.AvailabilityCondition != nil && rule.AvailabilityCondition.Expression != "" {
			checked, err := downscope.CompileCondition(rule.AvailabilityCondition)
			if err != nil {
				return nil, err
			}
			raw, err := proto.Marshal(checked)
			if err != nil {
				return nil, &auth.ConfigError{Message: "clientside: failed to marshal compiled condition", Cause: err}
			}
			rr.CompiledCondition = raw
		}
		rec.Rules = append(rec.Rules, rr)
	}
	out, err := json.Marshal(rec)
	if err != nil {
		return nil, &auth.ConfigError{Message: "clientside: failed to serialize access boundary", Cause: err}
	}
	return out, nil
}
