// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package webtool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhive/swarmd/pkg/toolhost"
)

func testCtx() toolhost.Context {
	return toolhost.Context{Context: context.Background()}
}

func TestWebRequestRejectsDeniedDomain(t *testing.T) {
	def, err := NewWebRequest(Config{DeniedDomains: []string{"*.internal.example.com"}})
	require.NoError(t, err)

	_, err = def.Handler(testCtx(), map[string]any{"url": "https://db.internal.example.com/query"})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, toolhost.ErrPolicyDenied))
}

func TestWebRequestRejectsDomainNotInAllowlist(t *testing.T) {
	def, err := NewWebRequest(Config{AllowedDomains: []string{"api.example.com"}})
	require.NoError(t, err)

	_, err = def.Handler(testCtx(), map[string]any{"url": "https://evil.example.org/"})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, toolhost.ErrPolicyDenied))
}

func TestWebRequestRejectsDisallowedMethod(t *testing.T) {
	def, err := NewWebRequest(Config{AllowedMethods: []string{"GET"}})
	require.NoError(t, err)

	_, err = def.Handler(testCtx(), map[string]any{"url": "https://api.example.com/", "method": "DELETE"})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, toolhost.ErrPolicyDenied))
}

func TestMatchesDomainWildcard(t *testing.T) {
	assert.True(t, matchesDomain("api.example.com", "*.example.com"))
	assert.True(t, matchesDomain("example.com", "example.com"))
	assert.False(t, matchesDomain("example.com", "other.com"))
}
