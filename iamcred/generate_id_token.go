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

// GenerateIDTokenRequest mints an OIDC ID token for targetPrincipal, per
// spec.md §4.7's impersonated ID token support.
type GenerateIDTokenRequest struct {
	TargetPrincipal string
	Delegates       []string
	Audience        string
	IncludeEmail    bool
}

func (c *Client) GenerateIDToken(ctx context.Context, req *GenerateIDTokenRequest) (*auth.AccessToken, error) {
	resp, err := c.api.GenerateIdToken(ctx, &credentialspb.GenerateIdTokenRequest{
		Name:         resourceName(req.TargetPrincipal),
		Delegates:    delegateNames(req.Delegates),
		Audience:     req.Audience,
		IncludeEmail: req.IncludeEmail,
	})
	if err != nil {
		return nil, &auth.IOError{Message: fmt.Sprintf("iamcred: generateIdToken failed for %s", req.TargetPrincipal), Cause: err}
	}
	// ID tokens carry their own exp claim; gauth treats them as opaque
	// bearer values here and leaves expiration parsing to the google
	// package's id-token credential kind, which already depends on jwx.
	return auth.NewAccessToken(resp.GetToken(), nil, nil), nil
}
