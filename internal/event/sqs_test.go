package event_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/almsbox/internal/event"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}

	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSPublisher_Publish(t *testing.T) {
	client := &fakeSQS{}
	pub := event.NewSQSPublisher(client, "https://sqs.local/queue")

	e := event.Event{
		ID:            uuid.New(),
		Type:          event.TransactionCompleted,
		TransactionID: uuid.New(),
		CampaignID:    uuid.New(),
		Amount:        200,
		Status:        "completed",
		OccurredAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, pub.Publish(context.Background(), e))
	require.Len(t, client.inputs, 1)

	in := client.inputs[0]
	assert.Equal(t, "https://sqs.local/queue", aws.ToString(in.QueueUrl))
	assert.Equal(t, "transaction.completed", aws.ToString(in.MessageAttributes["event_type"].StringValue))

	var got event.Event
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &got))
	assert.Equal(t, e, got)
	assert.NotContains(t, aws.ToString(in.MessageBody), "donor_id")
}

func TestSQSPublisher_PublishError(t *testing.T) {
	client := &fakeSQS{err: errors.New("throttled")}
	pub := event.NewSQSPublisher(client, "q")

	err := pub.Publish(context.Background(), event.Event{Type: event.TransactionSubmitted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestNoOpPublisher(t *testing.T) {
	assert.NoError(t, event.NoOpPublisher{}.Publish(context.Background(), event.Event{}))
}
