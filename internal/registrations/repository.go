package registrations

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/fairdinkum/course-backend/internal/models"
)

// DynamoDBAPI is the subset of the DynamoDB client the repository uses,
// narrow so tests can mock it.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Store is the persistence contract handlers depend on. Implemented by
// Repository against DynamoDB and by in-memory fakes in tests.
type Store interface {
	// Get returns the record for (courseID, email), or nil if absent.
	Get(ctx context.Context, courseID, email string) (*models.RegistrationRecord, error)
	// Put creates or overwrites the record at its composite key.
	Put(ctx context.Context, rec *models.RegistrationRecord) error
	// GetByRegistrationID resolves a record through the registration_id
	// secondary index, or nil if absent.
	GetByRegistrationID(ctx context.Context, registrationID string) (*models.RegistrationRecord, error)
	// FindPendingByEmail scans for pending records with the given email.
	// Non-indexed, O(table size); legacy webhook fallback only.
	FindPendingByEmail(ctx context.Context, email string) ([]models.RegistrationRecord, error)
	// MarkPaid transitions the record at (courseID, email) to paid and
	// records payment metadata.
	MarkPaid(ctx context.Context, courseID, email string, p models.PaymentDetails) error
	// Approve transitions an application from applied to pending.
	Approve(ctx context.Context, courseID, email, approvalDate string) error
}

// Repository persists registration records in a single DynamoDB table keyed
// by (course_id, email) with a GSI on registration_id.
type Repository struct {
	client   DynamoDBAPI
	table    string
	regIDIdx string
}

// NewRepository creates a registrations repository.
func NewRepository(client DynamoDBAPI, table, registrationIDIndex string) *Repository {
	return &Repository{client: client, table: table, regIDIdx: registrationIDIndex}
}

func (r *Repository) key(courseID, email string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"course_id": &types.AttributeValueMemberS{Value: courseID},
		"email":     &types.AttributeValueMemberS{Value: email},
	}
}

// Get returns the record for (courseID, email), or nil if absent.
func (r *Repository) Get(ctx context.Context, courseID, email string) (*models.RegistrationRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key:       r.key(courseID, email),
	})
	if err != nil {
		return nil, fmt.Errorf("get registration: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var rec models.RegistrationRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal registration: %w", err)
	}
	return &rec, nil
}

// Put creates or overwrites the record at its composite key.
func (r *Repository) Put(ctx context.Context, rec *models.RegistrationRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put registration: %w", err)
	}
	return nil
}

// GetByRegistrationID resolves a record through the registration_id GSI.
func (r *Repository) GetByRegistrationID(ctx context.Context, registrationID string) (*models.RegistrationRecord, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		IndexName:              aws.String(r.regIDIdx),
		KeyConditionExpression: aws.String("registration_id = :rid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rid": &types.AttributeValueMemberS{Value: registrationID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query registration_id index: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var rec models.RegistrationRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return nil, fmt.Errorf("unmarshal registration: %w", err)
	}
	return &rec, nil
}

// FindPendingByEmail scans for pending records with the given email.
func (r *Repository) FindPendingByEmail(ctx context.Context, email string) ([]models.RegistrationRecord, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(r.table),
		FilterExpression: aws.String("email = :email AND payment_status = :pending"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email":   &types.AttributeValueMemberS{Value: email},
			":pending": &types.AttributeValueMemberS{Value: models.StatusPending},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scan registrations by email: %w", err)
	}
	var recs []models.RegistrationRecord
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &recs); err != nil {
		return nil, fmt.Errorf("unmarshal registrations: %w", err)
	}
	return recs, nil
}

// MarkPaid transitions the record at (courseID, email) to paid.
func (r *Repository) MarkPaid(ctx context.Context, courseID, email string, p models.PaymentDetails) error {
	amount, err := attributevalue.Marshal(p.Amount)
	if err != nil {
		return fmt.Errorf("marshal amount: %w", err)
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.table),
		Key:       r.key(courseID, email),
		UpdateExpression: aws.String(
			"SET payment_status = :status, payment_date = :date, stripe_session_id = :session_id, payment_amount = :amount, currency = :currency"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":     &types.AttributeValueMemberS{Value: models.StatusPaid},
			":date":       &types.AttributeValueMemberS{Value: p.PaymentDate},
			":session_id": &types.AttributeValueMemberS{Value: p.StripeSessionID},
			":amount":     amount,
			":currency":   &types.AttributeValueMemberS{Value: p.Currency},
		},
	})
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	return nil
}

// Approve transitions an application from applied to pending.
func (r *Repository) Approve(ctx context.Context, courseID, email, approvalDate string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.table),
		Key:              r.key(courseID, email),
		UpdateExpression: aws.String("SET payment_status = :status, approval_date = :date"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: models.StatusPending},
			":date":   &types.AttributeValueMemberS{Value: approvalDate},
		},
	})
	if err != nil {
		return fmt.Errorf("approve application: %w", err)
	}
	return nil
}
