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

package imagetool

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBackendGenerate(t *testing.T) {
	const png = "fake-png-bytes"
	encoded := base64.StdEncoding.EncodeToString([]byte(png))

	var gotReq imageGenerationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(imageGenerationResponse{
			Data: []struct {
				B64JSON string `json:"b64_json"`
			}{{B64JSON: encoded}},
		})
	}))
	defer srv.Close()

	backend := NewHTTPBackend(HTTPBackendConfig{BaseURL: srv.URL, APIKey: "test-key"})
	images, err := backend.Generate(context.Background(), "a red circle", 1, 512, 256)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, []byte(png), images[0].PNG)

	assert.Equal(t, "a red circle", gotReq.Prompt)
	assert.Equal(t, 1, gotReq.N)
	assert.Equal(t, "512x256", gotReq.Size)
}

func TestHTTPBackendGenerateBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad prompt"))
	}))
	defer srv.Close()

	backend := NewHTTPBackend(HTTPBackendConfig{BaseURL: srv.URL, MaxRetries: 0})
	_, err := backend.Generate(context.Background(), "x", 1, 64, 64)
	assert.Error(t, err)
}

func TestHTTPBackendGenerateInvalidBase64(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(imageGenerationResponse{
			Data: []struct {
				B64JSON string `json:"b64_json"`
			}{{B64JSON: "not-valid-base64!!"}},
		})
	}))
	defer srv.Close()

	backend := NewHTTPBackend(HTTPBackendConfig{BaseURL: srv.URL, MaxRetries: 0})
	_, err := backend.Generate(context.Background(), "x", 1, 64, 64)
	assert.Error(t, err)
}
