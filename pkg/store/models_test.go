package store

import (
	"testing"

	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/domain"
)

func TestJobFromModelClassifiesLegacyRows(t *testing.T) {
	cases := []struct {
		content    string
		wantStatus domain.JobStatus
		wantText   string
		wantErr    string
	}{
		{content: "pending", wantStatus: domain.StatusPending},
		{content: "processing", wantStatus: domain.StatusProcessing},
		{content: "Error: webhook returned 502", wantStatus: domain.StatusFailed, wantErr: "webhook returned 502"},
		{content: "Summary body", wantStatus: domain.StatusCompleted, wantText: "Summary body"},
	}
	for _, tc := range cases {
		job := jobFromModel(SummaryJobModel{ID: "legacy", OwnerID: "u", Content: tc.content})
		if job.Status != tc.wantStatus || job.Text != tc.wantText || job.ErrorMessage != tc.wantErr {
			t.Fatalf("content %q: got status=%s text=%q err=%q", tc.content, job.Status, job.Text, job.ErrorMessage)
		}
	}
}

func TestJobFromModelKeepsExplicitStatus(t *testing.T) {
	job := jobFromModel(SummaryJobModel{ID: "j", Status: "completed", Content: "pending"})
	if job.Status != domain.StatusCompleted || job.Text != "pending" {
		t.Fatalf("explicit status must win over content markers: %+v", job)
	}
}
