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
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/tidwall/gjson"

	"github.com/external-secrets/gauth/auth"
	"github.com/external-secrets/gauth/internal/envprovider"
)

const defaultExecutableTimeout = 30 * time.Second

// executableAuthEnvVar gates executable-sourced credentials behind an
// explicit opt-in, since they run arbitrary local commands (spec.md §4.5's
// Pluggable Auth protocol).
const executableAuthEnvVar = "GOOGLE_EXTERNAL_ACCOUNT_ALLOW_EXECUTABLES"

// executableSubjectTokenSource shells out to a local command that prints a
// JSON response on stdout describing success/failure and, on success, the
// subject token itself.
type executableSubjectTokenSource struct {
	cfg     *ExecutableConfig
	env     envprovider.Provider
	outFile string
	run     func(ctx context.Context, name string, args []string) ([]byte, error)
}

func newExecutableSubjectTokenSource(cfg *ExecutableConfig, env envprovider.Provider) (*executableSubjectTokenSource, error) {
	if cfg == nil || cfg.Command == "" {
		return nil, &auth.ConfigError{Message: "executable credential source requires a command"}
	}
	return &executableSubjectTokenSource{
		cfg:     cfg,
		env:     env,
		outFile: cfg.OutputFile,
		run:     runCommand,
	}, nil
}

func runCommand(ctx context.Context, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

// executableResponse is the Pluggable Auth JSON contract.
type executableResponse struct {
	Success        bool
	Version        int64
	TokenType      string
	ExpirationTime int64
	SubjectToken   string
	SAML2Response  string
	Code           string
	Message        string
}

func parseExecutableResponse(data []byte) (*executableResponse, error) {
	if !gjson.ValidBytes(data) {
		return nil, &auth.SubjectTokenError{Message: "executable did not return valid JSON"}
	}
	root := gjson.ParseBytes(data)
	return &executableResponse{
		Success:        root.Get("success").Bool(),
		Version:        root.Get("version").Int(),
		TokenType:      root.Get("token_type").String(),
		ExpirationTime: root.Get("expiration_time").Int(),
		SubjectToken:   root.Get("id_token").String(),
		SAML2Response:  root.Get("saml_subject_token").String(),
		Code:           root.Get("code").String(),
		Message:        root.Get("message").String(),
	}, nil
}

func (s *executableSubjectTokenSource) SubjectToken(ctx context.Context, opts SupplierOptions) (string, error) {
	if v, ok := s.env.LookupEnv(executableAuthEnvVar); !ok || v != "1" {
		return "", &auth.ConfigError{Message: executableAuthEnvVar + " must be set to 1 to run executable-sourced credentials"}
	}

	if s.outFile != "" {
		if data, err := s.env.ReadFile(s.outFile); err == nil && len(data) > 0 {
			if resp, perr := parseExecutableResponse(data); perr == nil && resp.Success && !isExpired(resp, time.Now) {
				return subjectTokenFromResponse(resp)
			}
		}
	}

	timeout := defaultExecutableTimeout
	if s.cfg.TimeoutMillis != nil {
		timeout = time.Duration(*s.cfg.TimeoutMillis) * time.Millisecond
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := s.run(runCtx, s.cfg.Command, nil)
	if err != nil {
		return "", &auth.SubjectTokenError{Message: "executable credential command failed", Cause: err}
	}

	resp, err := parseExecutableResponse(out)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", &auth.ExecutableError{Code: resp.Code, Message: resp.Message}
	}
	return subjectTokenFromResponse(resp)
}

func isExpired(resp *executableResponse, now func() time.Time) bool {
	if resp.ExpirationTime == 0 {
		return false
	}
	return now().Unix() >= resp.ExpirationTime
}

func subjectTokenFromResponse(resp *executableResponse) (string, error) {
	switch resp.TokenType {
	case "urn:ietf:params:oauth:token-type:saml2":
		if resp.SAML2Response == "" {
			return "", &auth.SubjectTokenError{Message: "executable success response missing saml_subject_token"}
		}
		return resp.SAML2Response, nil
	default:
		if resp.SubjectToken == "" {
			return "", &auth.SubjectTokenError{Message: "executable success response missing id_token"}
		}
		return resp.SubjectToken, nil
	}
}
