package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mosaic/pkg/api"
)

func TestGetRunLogs(t *testing.T) {
	tests := []struct {
		name            string
		path            string
		mockSetup       func(*mockStore)
		expectedStatus  int
		expectedAfterID int64
		expectedLimit   int
		expectedCount   int
	}{
		{
			name:           "Success Defaults",
			path:           "/runs/1/logs",
			expectedStatus: http.StatusOK,
			expectedLimit:  1000,
			expectedCount:  2,
		},
		{
			name:            "Pagination",
			path:            "/runs/1/logs?after_id=1&limit=5",
			expectedStatus:  http.StatusOK,
			expectedAfterID: 1,
			expectedLimit:   5,
			expectedCount:   1,
		},
		{
			name:           "Limit Out Of Range",
			path:           "/runs/1/logs?limit=50000&after_id=abc",
			expectedStatus: http.StatusOK,
			expectedLimit:  1000,
			expectedCount:  2,
		},
		{
			name:           "Invalid Run ID",
			path:           "/runs/xyz/logs",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Run Not Found",
			path:           "/runs/9/logs",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "Run Lookup Error",
			path:           "/runs/1/logs",
			mockSetup:      func(m *mockStore) { m.getRunErr = errors.New("db down") },
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "Logs Error",
			path:           "/runs/1/logs",
			mockSetup:      func(m *mockStore) { m.getLogsErr = errors.New("db down") },
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := summaryStore()
			if tt.mockSetup != nil {
				tt.mockSetup(s)
			}
			h := New(s, &mockRunner{}, &mockProber{}, HandlerConfig{})

			mux := http.NewServeMux()
			mux.HandleFunc("GET /runs/{id}/logs", h.GetRunLogs)

			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rr.Code != tt.expectedStatus {
				t.Fatalf("got status %d, want %d", rr.Code, tt.expectedStatus)
			}
			if rr.Code != http.StatusOK {
				return
			}

			if s.capturedAfterID != tt.expectedAfterID || s.capturedLimit != tt.expectedLimit {
				t.Errorf("store called with after_id=%d limit=%d, want %d %d",
					s.capturedAfterID, s.capturedLimit, tt.expectedAfterID, tt.expectedLimit)
			}

			var resp api.GetLogsResponse
			json.NewDecoder(rr.Body).Decode(&resp)
			if len(resp.Logs) != tt.expectedCount {
				t.Fatalf("expected %d logs, got %d", tt.expectedCount, len(resp.Logs))
			}
			last := resp.Logs[len(resp.Logs)-1]
			if last.Action != "Bin stored" || last.StationCode == nil || *last.StationCode != 3 || *last.BinCode != 101 {
				t.Errorf("unexpected entry: %+v", last)
			}
		})
	}
}

