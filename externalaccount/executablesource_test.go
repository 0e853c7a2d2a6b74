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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/external-secrets/gauth/auth"
	"github.com/external-secrets/gauth/internal/envprovider"
)

func TestExecutableSourceRequiresOptIn(t *testing.T) {
	env := envprovider.NewMap()
	s, err := newExecutableSubjectTokenSource(&ExecutableConfig{Command: "/bin/true"}, env)
	require.NoError(t, err)
	_, err = s.SubjectToken(context.Background(), SupplierOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), executableAuthEnvVar)
}

func TestExecutableSourceRunsCommandAndParsesSuccess(t *testing.T) {
	env := envprovider.NewMap()
	env.Env[executableAuthEnvVar] = "1"
	s, err := newExecutableSubjectTokenSource(&ExecutableConfig{Command: "fake-plugin"}, env)
	require.NoError(t, err)
	s.run = func(ctx context.Context, name string, args []string) ([]byte, error) {
		assert.Equal(t, "fake-plugin", name)
		return []byte(`{"version":1,"success":true,"token_type":"urn:ietf:params:oauth:token-type:id_token","id_token":"exec-tok","expiration_time":9999999999}`), nil
	}
	tok, err := s.SubjectToken(context.Background(), SupplierOptions{})
	require.NoError(t, err)
	assert.Equal(t, "exec-tok", tok)
}

func TestExecutableSourceSurfacesFailure(t *testing.T) {
	env := envprovider.NewMap()
	env.Env[executableAuthEnvVar] = "1"
	s, err := newExecutableSubjectTokenSource(&ExecutableConfig{Command: "fake-plugin"}, env)
	require.NoError(t, err)
	s.run = func(ctx context.Context, name string, args []string) ([]byte, error) {
		return []byte(`{"version":1,"success":false,"code":"401","message":"denied"}`), nil
	}
	_, err = s.SubjectToken(context.Background(), SupplierOptions{})
	require.Error(t, err)
	var execErr *auth.ExecutableError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, err.Error(), "denied")
}

func TestExecutableSourceUsesCachedOutputFile(t *testing.T) {
	env := envprovider.NewMap()
	env.Env[executableAuthEnvVar] = "1"
	env.Files["/tmp/exec-out.json"] = []byte(`{"version":1,"success":true,"token_type":"urn:ietf:params:oauth:token-type:id_token","id_token":"cached-tok","expiration_time":9999999999}`)
	s, err := newExecutableSubjectTokenSource(&ExecutableConfig{Command: "fake-plugin", OutputFile: "/tmp/exec-out.json"}, env)
	require.NoError(t, err)
	s.run = func(ctx context.Context, name string, args []string) ([]byte, error) {
		t.Fatal("should not invoke the command when a fresh cache file exists")
		return nil, nil
	}
	tok, err := s.SubjectToken(context.Background(), SupplierOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cached-tok", tok)
}
