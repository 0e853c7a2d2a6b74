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
	"time"

	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"

	"github.com/external-secrets/gauth/auth"
)

// GenerateAccessTokenRequest mirrors the IAM Credentials API call spec.md
// §4.7 describes: mint a short-lived access token for targetPrincipal,
// optionally chaining through delegates, scoped to scopes, alive for
// lifetime (capped by IAM at one hour unless an org policy extends it).
type GenerateAccessTokenRequest struct {
	TargetPrincipal string
	Delegates       []string
	Scope           []string
	Lifetime        time.Duration
}

func (c *Client) GenerateAccessToken(ctx context.Context, req *GenerateAccessTokenRequest) (*auth.AccessToken, error) {
	pbReq := &credentialspb.GenerateAccessTokenRequest{
		Name:      resourceName(req.TargetPrincipal),
		Delegates: delegateNames(req.Delegates),
		Scope:     req.Scope,
	}
	if req.Lifetime > 0 {
		pbReq.Lifetime = toDurationpb(req.Lifetime)
	}
	resp, err := c.api.GenerateAccessToken(ctx, pbReq)
	if err != nil {
		return nil, &auth.IOError{Message: fmt.Sprintf("iamcred: generateAccessToken failed for %s", req.TargetPrincipal), Cause: err}
	}
	var expiration *time.Time
	if et := resp.GetExpireTime(); et != nil {
		t := et.AsTime()
		expiration = &t
	}
	return auth.NewAccessToken(resp.GetAccessToken(), expiration, req.Scope), nil
}

func resourceName(principal string) string {
	return fmt.Sprintf("projects/-/serviceAccounts/%s", principal)
}

func delegateNames(delegates []string) []string {
	if len(delegates) == 0 {
		return nil
	}
	out := make([]string, len(delegates))
	for i, d := range delegates {
		out[i] = resourceName(d)
	}
	return out
}
