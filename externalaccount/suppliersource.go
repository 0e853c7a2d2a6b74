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

import (
	"context"

	"github.com/external-secrets/gauth/auth"
)

// supplierSubjectTokenSource adapts a caller-supplied SubjectTokenSupplier
// into the internal subjectTokenSource contract.
type supplierSubjectTokenSource struct {
	supplier SubjectTokenSupplier
	opts     SupplierOptions
}

func (s *supplierSubjectTokenSource) SubjectToken(ctx context.Context, _ SupplierOptions) (string, error) {
	tok, err := s.supplier.SubjectToken(ctx, s.opts)
	if err != nil {
		return "", &auth.SubjectTokenError{Message: "subject token supplier failed", Cause: err}
	}
	if tok == "" {
		return "", &auth.SubjectTokenError{Message: "subject token supplier returned an empty token"}
	}
	return tok, nil
}
