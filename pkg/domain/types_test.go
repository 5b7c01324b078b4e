package domain

import "testing"

func TestClassifyContent(t *testing.T) {
	cases := []struct {
		name       string
		content    string
		wantStatus JobStatus
		wantErr    string
	}{
		{name: "pending marker", content: "pending", wantStatus: StatusPending},
		{name: "processing marker", content: "processing", wantStatus: StatusProcessing},
		{name: "error prefix", content: "Error: msg", wantStatus: StatusFailed, wantErr: "msg"},
		{name: "error prefix without space", content: "Error:timeout", wantStatus: StatusFailed, wantErr: "timeout"},
		{name: "plain text", content: "The video explains Go channels.", wantStatus: StatusCompleted},
		{name: "empty", content: "", wantStatus: StatusCompleted},
		// Summaries whose text collides with a marker cannot be told apart.
		{name: "text equal to marker", content: "pending", wantStatus: StatusPending},
		{name: "text starting with error prefix", content: "Error: handling in Go is explicit.", wantStatus: StatusFailed, wantErr: "handling in Go is explicit."},
		{name: "marker with surrounding text", content: "pending review", wantStatus: StatusCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, errMsg := ClassifyContent(tc.content)
			if status != tc.wantStatus || errMsg != tc.wantErr {
				t.Fatalf("ClassifyContent(%q) = (%s, %q), want (%s, %q)", tc.content, status, errMsg, tc.wantStatus, tc.wantErr)
			}
		})
	}
}

func TestContentRoundTripsThroughClassify(t *testing.T) {
	jobs := []SummaryJob{
		{Status: StatusPending},
		{Status: StatusProcessing},
		{Status: StatusFailed, ErrorMessage: "summarizer unavailable"},
		{Status: StatusCompleted, Text: "A short summary."},
	}
	for _, job := range jobs {
		status, errMsg := ClassifyContent(job.Content())
		if status != job.Status || errMsg != job.ErrorMessage {
			t.Fatalf("round trip of %+v gave (%s, %q)", job, status, errMsg)
		}
	}
}
