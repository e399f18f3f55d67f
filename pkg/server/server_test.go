/*
Copyright 2024 EscherCloud.

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

package server_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eschercloudai/site-agent/pkg/server"
)

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))

	return recorder
}

// TestHealthz expects the probe to fail until the agent is marked ready.
func TestHealthz(t *testing.T) {
	t.Parallel()

	s := &server.Server{
		Options: server.Options{
			RequestTimeout: time.Second,
		},
	}

	handler := s.GetServer().Handler

	assert.Equal(t, http.StatusServiceUnavailable, get(t, handler, "/healthz").Code)

	s.MarkReady()

	assert.Equal(t, http.StatusOK, get(t, handler, "/healthz").Code)
}

// TestMetrics expects the Prometheus endpoint to respond.
func TestMetrics(t *testing.T) {
	t.Parallel()

	s := &server.Server{
		Options: server.Options{
			RequestTimeout: time.Second,
		},
	}

	recorder := get(t, s.GetServer().Handler, "/metrics")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "go_goroutines")
}
