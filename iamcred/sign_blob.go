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

package iamcred

import (
	"context"
	"fmt"

	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"

	"github.com/external-secrets/gauth/auth"
)

// SignBlobRequest asks IAM to sign payload with targetPrincipal's private
// key without the caller ever holding it (spec.md §4.7's signBlob
// support, used by self-signed JWT flows under impersonation).
type SignBlobRequest struct {
	TargetPrincipal string
	Delegates       []string
	Payload         []byte
}

// SignBlobResponse carries the signer's key id alongside the signature so
// callers can cross-check against a JWKS if desired.
type SignBlobResponse struct {
	KeyID     string
	Signature []byte
}

func (c *Client) SignBlob(ctx context.Context, req *SignBlobRequest) (*SignBlobResponse, error) {
	resp, err := c.api.SignBlob(ctx, &credentialspb.SignBlobRequest{
		Name:      resourceName(req.TargetPrincipal),
		Delegates: delegateNames(req.Delegates),
		Payload:   req.Payload,
	})
	if err != nil {
		return nil, &auth.SigningError{Cause: fmt.Errorf("iamcred: signBlob failed for %s: %w", req.TargetPrincipal, err)}
	}
	return &SignBlobResponse{KeyID: resp.GetKeyId(), Signature: resp.GetSignedBlob()}, nil
}
