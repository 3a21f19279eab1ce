package queueing

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// sqsAPI is the subset of the SQS client the queue wrapper depends on.
type sqsAPI interface {
	SendMessage(context.Context, *sqs.SendMessageInput, ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Queue publishes FIFO messages to a single SQS queue URL.
type Queue struct {
	client sqsAPI
}

// NewQueue builds a Queue backed by the provided SQS client.
func NewQueue(client sqsAPI) *Queue {
	if client == nil {
		panic("queueing: sqs client cannot be nil")
	}
	return &Queue{client: client}
}

// Send publishes body to queueURL as a FIFO message, using
// MessageGroupId "default" and dedupID (the correlation id) as the
// deduplication id.
func (q *Queue) Send(ctx context.Context, queueURL, body, dedupID string) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               aws.String(queueURL),
		MessageBody:            aws.String(body),
		MessageGroupId:         aws.String("default"),
		MessageDeduplicationId: aws.String(dedupID),
	})
	if err != nil {
		return fmt.Errorf("queueing: send message to %s: %w", queueURL, err)
	}
	return nil
}
