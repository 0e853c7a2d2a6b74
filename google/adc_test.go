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

package google

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/external-secrets/gauth/internal/envprovider"
)

const testAuthorizedUserJSON = `{
	"type": "authorized_user",
	"client_id": "client-1.apps.googleusercontent.com",
	"client_secret": "shh",
	"refresh_token": "rt-1"
}`

func TestFindDefaultCredentialsUsesEnvVarPath(t *testing.T) {
	env := envprovider.NewMap()
	env.Env["GOOGLE_APPLICATION_CREDENTIALS"] = "/fake/adc.json"
	env.Files["/fake/adc.json"] = []byte(testAuthorizedUserJSON)

	creds, err := FindDefaultCredentials(context.Background(), nil, env)
	require.NoError(t, err)
	assert.NotNil(t, creds)
}

func TestFindDefaultCredentialsFallsBackToWellKnownPath(t *testing.T) {
	env := envprovider.NewMap()
	env.Home = "/home/tester"
	wellKnown := "/home/tester/.config/gcloud/application_default_credentials.json"
	env.Files[wellKnown] = []byte(testAuthorizedUserJSON)

	creds, err := FindDefaultCredentials(context.Background(), nil, env)
	require.NoError(t, err)
	assert.NotNil(t, creds)
}

func TestFindDefaultCredentialsUsesCloudSDKConfigOverride(t *testing.T) {
	env := envprovider.NewMap()
	env.Env["CLOUDSDK_CONFIG"] = "/custom/cfgdir"
	env.Files["/custom/cfgdir/application_default_credentials.json"] = []byte(testAuthorizedUserJSON)

	creds, err := FindDefaultCredentials(context.Background(), nil, env)
	require.NoError(t, err)
	assert.NotNil(t, creds)
}

func TestFindDefaultCredentialsErrorsWhenNothingFound(t *testing.T) {
	env := envprovider.NewMap()
	env.Env["NO_GCE_CHECK"] = "true"

	_, err := FindDefaultCredentials(context.Background(), nil, env)
	require.Error(t, err)
}

func TestFindDefaultCredentialsPropagatesUnknownType(t *testing.T) {
	env := envprovider.NewMap()
	env.Env["GOOGLE_APPLICATION_CREDENTIALS"] = "/fake/adc.json"
	env.Files["/fake/adc.json"] = []byte(`{"type": "some_future_type"}`)

	_, err := FindDefaultCredentials(context.Background(), nil, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized credential type")
}
