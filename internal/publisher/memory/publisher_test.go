package memory

import (
	"context"
	"testing"

	"github.com/JakeFAU/research-infograph/internal/research"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "topic-a", map[string]string{"k": "v"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "topic-b", "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if string(msgs[0].Data) != `{"k":"v"}` || string(msgs[1].Data) != `"payload"` {
		t.Fatalf("payloads not encoded as JSON: %+v", msgs)
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestPublisherDecodesNotifications(t *testing.T) {
	t.Parallel()

	pub := New()
	n := research.JobNotification{
		JobID:     "job-1",
		SessionID: 4,
		State:     research.JobStateSucceeded,
		Result:    &research.JobResult{SessionID: 4, Status: research.SessionStatusCompleted, SourcesCreated: 2},
	}
	if _, err := pub.Publish(context.Background(), "jobs", n); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if _, err := pub.Publish(context.Background(), "other", n); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	msgs := pub.Messages()
	if msgs[0].Attributes["job_id"] != "job-1" || msgs[0].Attributes["state"] != "succeeded" {
		t.Fatalf("expected notification attributes, got %+v", msgs[0].Attributes)
	}

	got, err := pub.Notifications("jobs")
	if err != nil {
		t.Fatalf("Notifications() error = %v", err)
	}
	if len(got) != 1 || got[0].JobID != "job-1" || got[0].Result.SourcesCreated != 2 {
		t.Fatalf("unexpected notifications %+v", got)
	}
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	if _, err := New().Publish(context.Background(), "jobs", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}
