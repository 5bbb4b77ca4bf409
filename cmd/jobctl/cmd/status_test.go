package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"longjob/pkg/api"

	"github.com/spf13/viper"
)

func TestStatusCommand_CompletedJob(t *testing.T) {
	resetViper()

	startTime := time.Now().Add(-10 * time.Minute)
	endTime := time.Now().Add(-9 * time.Minute)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET method, got %s", r.Method)
		}
		if !strings.Contains(r.URL.Path, "/api/jobs/job-123/state") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		resp := api.JobStateResponse{
			ID:          "job-123",
			JobType:     "encode",
			Status:      "completed",
			RetryCount:  0,
			Cursor:      11,
			Produced:    "3a1b2n/YmFuYW5h",
			CreatedAt:   startTime.Add(-time.Minute),
			StartedAt:   &startTime,
			CompletedAt: &endTime,
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("user", "dev-user")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "job-123"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "job-123") {
		t.Errorf("expected job ID in output, got: %s", output)
	}
	if !strings.Contains(output, "completed") {
		t.Errorf("expected completed status, got: %s", output)
	}
	if !strings.Contains(output, "3a1b2n/YmFuYW5h") {
		t.Errorf("expected produced output, got: %s", output)
	}
	if !strings.Contains(output, "Cursor") {
		t.Errorf("expected Cursor field, got: %s", output)
	}
}

func TestStatusCommand_RunningJobOmitsProduced(t *testing.T) {
	resetViper()

	startTime := time.Now().Add(-time.Minute)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := api.JobStateResponse{
			ID:        "job-789",
			JobType:   "encode",
			Status:    "running",
			Cursor:    0,
			CreatedAt: startTime,
			StartedAt: &startTime,
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("user", "dev-user")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "job-789"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "running") {
		t.Errorf("expected running status, got: %s", output)
	}
	if strings.Contains(output, "Produced:") {
		t.Errorf("expected no Produced line for empty output, got: %s", output)
	}
}

func TestStatusCommand_NotFound(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("user", "dev-user")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "non-existent"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "Request failed with status code: 404") {
		t.Errorf("expected 404 error, got: %s", stdout.String())
	}
}

func TestStatusCommand_RequiresJobIDArgument(t *testing.T) {
	resetViper()

	var stderr bytes.Buffer
	rootCmd.SetOut(&stderr)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"status"}) // No job ID

	if err := rootCmd.Execute(); err == nil {
		t.Error("expected error when no job ID provided")
	}
}

func TestColorizeStatus(t *testing.T) {
	tests := []struct {
		status   string
		contains string
	}{
		{"completed", "completed"},
		{"failed", "failed"},
		{"running", "running"},
		{"queued", "queued"},
		{"cancelling", "cancelling"},
		{"retrying", "retrying"},
		{"unknown", "unknown"},
	}

	for _, tt := range tests {
		result := colorizeStatus(tt.status)
		if !strings.Contains(result, tt.contains) {
			t.Errorf("colorizeStatus(%s) should contain %s, got: %s", tt.status, tt.contains, result)
		}
	}
}

func TestStatusIcon(t *testing.T) {
	tests := []struct {
		status   string
		contains string
	}{
		{"completed", "✓"},
		{"failed", "✗"},
		{"abandoned", "✗"},
		{"cancelled", "⊘"},
		{"running", "⏳"},
		{"queued", "◯"},
		{"unknown", "•"},
	}

	for _, tt := range tests {
		result := statusIcon(tt.status)
		if !strings.Contains(result, tt.contains) {
			t.Errorf("statusIcon(%s) should contain %s, got: %s", tt.status, tt.contains, result)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1500 * time.Millisecond, "1.5s"},
		{65 * time.Second, "1m 5s"},
		{125 * time.Minute, "2h 5m"},
	}

	for _, tt := range tests {
		result := formatDuration(tt.duration)
		if result != tt.expected {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.duration, result, tt.expected)
		}
	}
}

func TestRelativeTime(t *testing.T) {
	tests := []struct {
		offset   time.Duration
		contains string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{48 * time.Hour, "2 days"},
	}

	for _, tt := range tests {
		testTime := time.Now().Add(-tt.offset)
		result := relativeTime(testTime)
		if !strings.Contains(result, tt.contains) {
			t.Errorf("relativeTime(%v ago) should contain %s, got: %s", tt.offset, tt.contains, result)
		}
	}
}
