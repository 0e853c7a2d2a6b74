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

// Package awssource produces the opaque subject token Google STS expects
// from an AWS workload: a SigV4-signed GetCallerIdentity request, packaged
// as JSON rather than actually invoked. STS itself replays the request to
// AWS to verify the caller's identity (spec.md §4.5's AWS vector).
package awssource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
)

// Credentials is the AWS access key triple used to sign the request.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

const defaultVerificationURLTemplate = "https://sts.%s.amazonaws.com?Action=GetCallerIdentity&Version=2011-06-15"

type header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// subjectToken is the wire shape Google STS expects for AWS subject
// tokens: a serialized, unexecuted HTTP request it replays itself.
type subjectToken struct {
	URL     string   `json:"url"`
	Method  string   `json:"method"`
	Headers []header `json:"headers"`
}

// SignGetCallerIdentity builds and SigV4-signs a GetCallerIdentity request
// for region using creds, sets the x-goog-cloud-target-resource header to
// audience (required for STS to bind the proof to this specific workload
// identity pool provider), and serializes the result into the subject
// token STS expects.
func SignGetCallerIdentity(ctx context.Context, creds Credentials, region, verificationURL, audience string) (string, error) {
	if verificationURL == "" {
		verificationURL = fmt.Sprintf(defaultVerificationURLTemplate, region)
	}
	reqURL, err := url.Parse(verificationURL)
	if err != nil {
		return "", fmt.Errorf("awssource: invalid regional credential verification URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("awssource: failed to build request: %w", err)
	}
	req.Header.Set("host", reqURL.Host)
	if audience != "" {
		req.Header.Set("x-goog-cloud-target-resource", audience)
	}

	awsCreds := aws.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}
	signer := v4.NewSigner()
	const emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if err := signer.SignHTTP(ctx, awsCreds, req, emptyPayloadHash, "sts", region, time.Now()); err != nil {
		return "", fmt.Errorf("awssource: SigV4 signing failed: %w", err)
	}

	headers := make([]header, 0, len(req.Header)+1)
	for k, vs := range req.Header {
		for _, v := range vs {
			headers = append(headers, header{Key: k, Value: v})
		}
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].Key < headers[j].Key })

	tok := subjectToken{URL: reqURL.String(), Method: http.MethodPost, Headers: headers}
	raw, err := json.Marshal(tok)
	if err != nil {
		return "", fmt.Errorf("awssource: failed to marshal subject token: %w", err)
	}
	return url.QueryEscape(string(raw)), nil
}

// StaticCredentialsProvider adapts a fixed Credentials value into the
// aws-sdk-go-v2 CredentialsProvider interface, for callers who already
// hold a triple (e.g. from an AWSSecurityCredentialsSupplier) rather than
// wanting the SDK's own default chain.
func StaticCredentialsProvider(c Credentials) aws.CredentialsProvider {
	return awscreds.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken)
}
