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
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/external-secrets/gauth/auth"
)

// parsePrivateKeyPEM decodes a service account JSON file's PEM-encoded
// private_key field. PKCS#8 is the documented format (spec.md §6); PKCS#1
// is accepted too since some older key exports still use it. This stays
// on the standard library because spec.md §1 places RSA signing itself
// out of scope as a cryptographic primitive, and the pack's own PEM
// handling (go-crypto, jwx/jwk) targets OpenPGP and raw JWK material, not
// PKCS8 service account keys.
func parsePrivateKeyPEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, &auth.ConfigError{Message: "service account private_key is not valid PEM"}
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, &auth.ConfigError{Message: "service account private key is not an RSA key"}
		}
		return rsaKey, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, &auth.ConfigError{Message: "failed to parse service account private key as PKCS8 or PKCS1"}
}

// signAssertion builds and RS256-signs a JWT assertion via jwx/v2,
// carrying any extra claims (e.g. "scope" for the jwt-bearer grant, or
// "target_audience" for a self-signed ID token request) alongside the
// standard issuer/subject/audience/iat/exp set.
func signAssertion(key *rsa.PrivateKey, keyID, issuer, subject, audience string, lifetime time.Duration, extraClaims map[string]any) (string, error) {
	now := time.Now()
	builder := jwt.NewBuilder().
		Issuer(issuer).
		Subject(subject).
		Audience([]string{audience}).
		IssuedAt(now).
		Expiration(now.Add(lifetime))
	for k, v := range extraClaims {
		builder = builder.Claim(k, v)
	}
	tok, err := builder.Build()
	if err != nil {
		return "", &auth.SigningError{Cause: err}
	}

	hdrs := jws.NewHeaders()
	if keyID != "" {
		if err := hdrs.Set(jws.KeyIDKey, keyID); err != nil {
			return "", &auth.SigningError{Cause: err}
		}
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		return "", &auth.SigningError{Cause: err}
	}
	return string(signed), nil
}

func scopeClaim(scopes []string) map[string]any {
	if len(scopes) == 0 {
		return nil
	}
	return map[string]any{"scope": strings.Join(scopes, " ")}
}
