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

// Package iamcred wraps the IAM Credentials gRPC API (generateAccessToken,
// generateIdToken, signBlob) used to implement service account
// impersonation (spec.md §4.7).
package iamcred

import (
	"context"

	iam "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"github.com/googleapis/gax-go/v2"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	grpcoauth "grpc.go4.org/credentials/oauth"
)

// API is the subset of the generated IAM Credentials client gauth depends
// on; it lets tests substitute a fake without standing up a gRPC server.
type API interface {
	GenerateAccessToken(ctx context.Context, req *credentialspb.GenerateAccessTokenRequest, opts ...gax.CallOption) (*credentialspb.GenerateAccessTokenResponse, error)
	GenerateIdToken(ctx context.Context, req *credentialspb.GenerateIdTokenRequest, opts ...gax.CallOption) (*credentialspb.GenerateIdTokenResponse, error)
	SignBlob(ctx context.Context, req *credentialspb.SignBlobRequest, opts ...gax.CallOption) (*credentialspb.SignBlobResponse, error)
	Close() error
}

// Client drives impersonation calls against the IAM Credentials API,
// authenticating each RPC with a caller-supplied source token rather than
// ambient transport credentials, so the same process can impersonate on
// behalf of many different source identities.
type Client struct {
	api API
}

// NewClient dials the IAM Credentials API. source supplies the
// short-lived access token used to authenticate to IAM itself (the
// "source credential" of spec.md §4.7); it is re-read on every RPC via
// the oauth2.TokenSource it wraps, so callers should pass a source backed
// by their own refreshing Credentials.
func NewClient(ctx context.Context, source oauth2.TokenSource, opts ...option.ClientOption) (*Client, error) {
	base := []option.ClientOption{
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(credentials.NewTLS(nil))),
		option.WithGRPCDialOption(grpc.WithPerRPCCredentials(grpcoauth.TokenSource{TokenSource: source})),
	}
	c, err := iam.NewIamCredentialsClient(ctx, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Client{api: c}, nil
}

// NewClientFromAPI wraps an already-constructed API, primarily for tests.
func NewClientFromAPI(api API) *Client { return &Client{api: api} }

func (c *Client) Close() error { return c.api.Close() }
