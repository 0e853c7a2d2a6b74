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
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/external-secrets/gauth/auth"
	"github.com/external-secrets/gauth/externalaccount/awssource"
)

// awsSupplierSource drives the AWS vector off a caller-supplied
// AWSSecurityCredentialsSupplier instead of the IMDS default chain.
type awsSupplierSource struct {
	supplier AWSSecurityCredentialsSupplier
	audience string
}

func newAWSSupplierSource(supplier AWSSecurityCredentialsSupplier, audience string) subjectTokenSource {
	return &awsSupplierSource{supplier: supplier, audience: audience}
}

func (s *awsSupplierSource) SubjectToken(ctx context.Context, opts SupplierOptions) (string, error) {
	region, err := s.supplier.AWSRegion(ctx, opts)
	if err != nil {
		return "", &auth.SubjectTokenError{Message: "AWS region supplier failed", Cause: err}
	}
	creds, err := s.supplier.AWSSecurityCredentials(ctx, opts)
	if err != nil {
		return "", &auth.SubjectTokenError{Message: "AWS security credentials supplier failed", Cause: err}
	}
	return awssource.SignGetCallerIdentity(ctx, awssource.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}, region, "", s.audience)
}

// awsMetadataSource drives the AWS vector off the EC2 Instance Metadata
// Service, the default chain used when no supplier is configured
// (spec.md §4.5).
type awsMetadataSource struct {
	cfg        *Config
	httpClient *http.Client
}

func newAWSMetadataSource(cfg *Config) (subjectTokenSource, error) {
	return &awsMetadataSource{cfg: cfg, httpClient: http.DefaultClient}, nil
}

const (
	defaultIMDSRegionURL = "http://169.254.169.254/latest/meta-data/placement/availability-zone"
	defaultIMDSRoleURL   = "http://169.254.169.254/latest/meta-data/iam/security-credentials"
)

func (s *awsMetadataSource) SubjectToken(ctx context.Context, opts SupplierOptions) (string, error) {
	sessionToken, err := s.imdsv2SessionToken(ctx)
	if err != nil {
		return "", err
	}

	region, err := s.region(ctx, sessionToken)
	if err != nil {
		return "", err
	}
	creds, err := s.roleCredentials(ctx, sessionToken)
	if err != nil {
		return "", err
	}
	return awssource.SignGetCallerIdentity(ctx, *creds, region, s.cfg.CredentialSource.RegionalCredVerificationURL, s.cfg.Audience)
}

func (s *awsMetadataSource) imdsv2SessionToken(ctx context.Context) (string, error) {
	if s.cfg.CredentialSource.IMDSv2SessionTokenURL == "" {
		return "", nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.cfg.CredentialSource.IMDSv2SessionTokenURL, nil)
	if err != nil {
		return "", &auth.SubjectTokenError{Message: "failed to build IMDSv2 token request", Cause: err}
	}
	req.Header.Set("X-aws-ec2-metadata-token-ttl-seconds", "300")
	body, _, err := doAWSMetadataRequest(ctx, s.httpClient, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (s *awsMetadataSource) region(ctx context.Context, sessionToken string) (string, error) {
	url := s.cfg.CredentialSource.RegionURL
	if url == "" {
		url = defaultIMDSRegionURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &auth.SubjectTokenError{Message: "failed to build region request", Cause: err}
	}
	if sessionToken != "" {
		req.Header.Set("X-aws-ec2-metadata-token", sessionToken)
	}
	body, _, err := doAWSMetadataRequest(ctx, s.httpClient, req)
	if err != nil {
		return "", err
	}
	az := strings.TrimSpace(string(body))
	if len(az) == 0 {
		return "", &auth.SubjectTokenError{Message: "AWS metadata server returned an empty availability zone"}
	}
	// The region is the availability zone without its trailing letter
	// suffix (e.g. "us-east-1a" -> "us-east-1").
	return az[:len(az)-1], nil
}

type ec2RoleCredentials struct {
	AccessKeyID     string `json:"AccessKeyId"`
	SecretAccessKey string `json:"SecretAccessKey"`
	Token           string `json:"Token"`
}

func (s *awsMetadataSource) roleCredentials(ctx context.Context, sessionToken string) (*awssource.Credentials, error) {
	url := s.cfg.CredentialSource.URL
	if url == "" {
		url = defaultIMDSRoleURL
	}

	roleReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &auth.SubjectTokenError{Message: "failed to build role name request", Cause: err}
	}
	if sessionToken != "" {
		roleReq.Header.Set("X-aws-ec2-metadata-token", sessionToken)
	}
	roleBody, _, err := doAWSMetadataRequest(ctx, s.httpClient, roleReq)
	if err != nil {
		return nil, err
	}
	role := strings.TrimSpace(string(roleBody))
	if role == "" {
		return nil, &auth.SubjectTokenError{Message: "AWS metadata server returned no IAM role"}
	}

	credReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/"+role, nil)
	if err != nil {
		return nil, &auth.SubjectTokenError{Message: "failed to build role credentials request", Cause: err}
	}
	if sessionToken != "" {
		credReq.Header.Set("X-aws-ec2-metadata-token", sessionToken)
	}
	credBody, _, err := doAWSMetadataRequest(ctx, s.httpClient, credReq)
	if err != nil {
		return nil, err
	}

	var parsed ec2RoleCredentials
	if err := json.Unmarshal(credBody, &parsed); err != nil {
		return nil, &auth.SubjectTokenError{Message: "failed to parse AWS role credentials", Cause: err}
	}
	return &awssource.Credentials{
		AccessKeyID:     parsed.AccessKeyID,
		SecretAccessKey: parsed.SecretAccessKey,
		SessionToken:    parsed.Token,
	}, nil
}

func doAWSMetadataRequest(ctx context.Context, hc *http.Client, req *http.Request) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := hc.Do(req.WithContext(ctx))
	if err != nil {
		return nil, 0, &auth.SubjectTokenError{Message: "AWS metadata server request failed", Cause: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &auth.SubjectTokenError{Message: "failed reading AWS metadata response", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, &auth.SubjectTokenError{Message: "AWS metadata server returned non-200 status"}
	}
	return body, resp.StatusCode, nil
}
