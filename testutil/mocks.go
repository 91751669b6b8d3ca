// Package testutil provides mock servers shared by source and server tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockInnerTubeServer mocks the platform's internal live-chat endpoint. Each
// queued response is served once, in order; further requests get 404 so a
// runaway poll loop fails loudly in tests.
type MockInnerTubeServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses [][]byte
	requests  []InnerTubeRequest
}

// InnerTubeRequest is the decoded body of one poll request.
type InnerTubeRequest struct {
	Context struct {
		Client struct {
			ClientName    string `json:"clientName"`
			ClientVersion string `json:"clientVersion"`
		} `json:"client"`
	} `json:"context"`
	Continuation string `json:"continuation"`
}

// NewMockInnerTubeServer creates a new mock chat endpoint.
func NewMockInnerTubeServer(t *testing.T) *MockInnerTubeServer {
	t.Helper()
	m := &MockInnerTubeServer{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req InnerTubeRequest
		_ = json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck // test mock request
		m.mu.Lock()
		m.requests = append(m.requests, req)
		if len(m.responses) == 0 {
			m.mu.Unlock()
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body := m.responses[0]
		m.responses = m.responses[1:]
		m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(m.Close)
	return m
}

// QueueResponse appends a raw chat page to serve on the next request.
func (m *MockInnerTubeServer) QueueResponse(body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, body)
}

// Requests returns a copy of the poll requests seen so far.
func (m *MockInnerTubeServer) Requests() []InnerTubeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]InnerTubeRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
