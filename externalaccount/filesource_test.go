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

	"github.com/external-secrets/gauth/internal/envprovider"
)

func TestFileSubjectTokenSourceText(t *testing.T) {
	env := envprovider.NewMap()
	env.Files["/tmp/tok"] = []byte("a-token\n")
	s := newFileSubjectTokenSource("/tmp/tok", Format{}, env)
	tok, err := s.SubjectToken(context.Background(), SupplierOptions{})
	require.NoError(t, err)
	assert.Equal(t, "a-token", tok)
}

func TestFileSubjectTokenSourceJSON(t *testing.T) {
	env := envprovider.NewMap()
	env.Files["/tmp/tok.json"] = []byte(`{"access_token":"azure-tok"}`)
	s := newFileSubjectTokenSource("/tmp/tok.json", Format{Type: "json", SubjectTokenFieldName: "access_token"}, env)
	tok, err := s.SubjectToken(context.Background(), SupplierOptions{})
	require.NoError(t, err)
	assert.Equal(t, "azure-tok", tok)
}

func TestFileSubjectTokenSourceMissingFile(t *testing.T) {
	env := envprovider.NewMap()
	s := newFileSubjectTokenSource("/tmp/missing", Format{}, env)
	_, err := s.SubjectToken(context.Background(), SupplierOptions{})
	require.Error(t, err)
}
