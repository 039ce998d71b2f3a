package referrals

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/fairdinkum/course-backend/internal/models"
	"github.com/fairdinkum/course-backend/internal/registrations"
)

// Store is the persistence contract for referral events. Append-only: there
// is no update or delete.
type Store interface {
	Put(ctx context.Context, ev *models.ReferralEvent) error
	ListByCode(ctx context.Context, code string) ([]models.ReferralEvent, error)
}

// Repository persists referral events in DynamoDB, keyed by event_id with a
// GSI on referral_code.
type Repository struct {
	client  registrations.DynamoDBAPI
	table   string
	codeIdx string
}

// NewRepository creates a referrals repository.
func NewRepository(client registrations.DynamoDBAPI, table, codeIndex string) *Repository {
	return &Repository{client: client, table: table, codeIdx: codeIndex}
}

// Put appends a referral event.
func (r *Repository) Put(ctx context.Context, ev *models.ReferralEvent) error {
	item, err := attributevalue.MarshalMap(ev)
	if err != nil {
		return fmt.Errorf("marshal referral event: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put referral event: %w", err)
	}
	return nil
}

// ListByCode returns the events recorded for a referral code, via the
// referral_code index.
func (r *Repository) ListByCode(ctx context.Context, code string) ([]models.ReferralEvent, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		IndexName:              aws.String(r.codeIdx),
		KeyConditionExpression: aws.String("referral_code = :code"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":code": &types.AttributeValueMemberS{Value: code},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query referral_code index: %w", err)
	}
	var events []models.ReferralEvent
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &events); err != nil {
		return nil, fmt.Errorf("unmarshal referral events: %w", err)
	}
	return events, nil
}
