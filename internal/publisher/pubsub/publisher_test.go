package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/research-infograph/internal/research"
)

func newTestPublisher(t *testing.T) (*Publisher, *pstest.Server) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	_, err = client.CreateTopic(ctx, "jobs")
	require.NoError(t, err)

	pub := New(client)
	t.Cleanup(func() { _ = pub.Close() })
	return pub, srv
}

func TestPublishSendsJSONWithAttributes(t *testing.T) {
	t.Parallel()

	pub, srv := newTestPublisher(t)
	n := research.JobNotification{
		JobID:     "job-1",
		SessionID: 42,
		State:     research.JobStateFailed,
		Error:     "search: boom",
	}

	id, err := pub.Publish(context.Background(), "jobs", n)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "job-1", msgs[0].Attributes["job_id"])
	assert.Equal(t, "42", msgs[0].Attributes["session_id"])
	assert.Equal(t, "failed", msgs[0].Attributes["state"])

	var got research.JobNotification
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, n, got)
}

func TestPublishPlainPayloadHasNoAttributes(t *testing.T) {
	t.Parallel()

	pub, srv := newTestPublisher(t)
	_, err := pub.Publish(context.Background(), "jobs", map[string]int{"n": 1})
	require.NoError(t, err)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"n":1}`, string(msgs[0].Data))
	assert.Empty(t, msgs[0].Attributes)
}

func TestPublishValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "jobs", "x")
	require.Error(t, err)

	pub, _ := newTestPublisher(t)
	_, err = pub.Publish(context.Background(), "", "x")
	require.Error(t, err)

	_, err = pub.Publish(context.Background(), "jobs", make(chan int))
	require.Error(t, err)
}

func TestNewFromProjectRequiresProject(t *testing.T) {
	t.Parallel()

	_, err := NewFromProject(context.Background(), "")
	var cfgErr *research.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
