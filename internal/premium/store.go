package premium

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/laundry-payflow/internal/aws"
	"github.com/imrishuroy/laundry-payflow/internal/notify"
)

// Indexes on the premium_packages table.
const (
	OrderCodeIndex     = "order-code-index"     // order_code
	VendorIndex        = "vendor-index"         // vendor_id, created_at
	StatusExpiresIndex = "status-expires-index" // status, expires_at
)

var (
	ErrNotPending = errors.New("vendor package is not pending")
	ErrNotActive  = errors.New("vendor package is not active")
)

// Store reads the catalog and keeps vendor purchases.
type Store struct {
	client        aws.DynamoDBAPI
	catalogTable  string
	packagesTable string
	outbox        *notify.Store
}

func NewStore(client aws.DynamoDBAPI, catalogTable, packagesTable string, outbox *notify.Store) *Store {
	return &Store{client: client, catalogTable: catalogTable, packagesTable: packagesTable, outbox: outbox}
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": aws.StringValue(id)}
}

// GetPackage returns a catalog entry or (nil, nil).
func (s *Store) GetPackage(ctx context.Context, id string) (*Package, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{TableName: &s.catalogTable, Key: idKey(id)})
	if err != nil {
		return nil, fmt.Errorf("get package: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Package
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal package: %w", err)
	}
	return &p, nil
}

func (s *Store) Create(ctx context.Context, vp VendorPackage) error {
	item, err := attributevalue.MarshalMap(vp)
	if err != nil {
		return fmt.Errorf("marshal vendor package: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.packagesTable,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("put vendor package: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*VendorPackage, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.packagesTable,
		Key:            idKey(id),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get vendor package: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var vp VendorPackage
	if err := attributevalue.UnmarshalMap(out.Item, &vp); err != nil {
		return nil, fmt.Errorf("unmarshal vendor package: %w", err)
	}
	return &vp, nil
}

// GetByOrderCode resolves a webhook's order code. The index entry only gives
// the id; the row itself is read consistently.
func (s *Store) GetByOrderCode(ctx context.Context, code int64) (*VendorPackage, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.packagesTable,
		IndexName:              awsString(OrderCodeIndex),
		KeyConditionExpression: awsString("order_code = :c"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": aws.NumberValue(code),
		},
		Limit: awsInt32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query by order code: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	id, ok := out.Items[0]["id"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("order-code-index row without id")
	}
	return s.Get(ctx, id.Value)
}

// ListForVendor returns every purchase of the vendor, newest first.
func (s *Store) ListForVendor(ctx context.Context, vendorID string) ([]VendorPackage, error) {
	return s.query(ctx, &dyn.QueryInput{
		TableName:              &s.packagesTable,
		IndexName:              awsString(VendorIndex),
		KeyConditionExpression: awsString("vendor_id = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": aws.StringValue(vendorID),
		},
		ScanIndexForward: awsBool(false),
	})
}

// ListExpiring returns ACTIVE packages whose expiry is at or before now.
func (s *Store) ListExpiring(ctx context.Context, now time.Time) ([]VendorPackage, error) {
	return s.query(ctx, &dyn.QueryInput{
		TableName:                &s.packagesTable,
		IndexName:                awsString(StatusExpiresIndex),
		KeyConditionExpression:   awsString("#s = :active AND expires_at BETWEEN :min AND :now"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":active": aws.StringValue(string(StatusActive)),
			":min":    aws.StringValue(aws.FormatTime(time.Time{})),
			":now":    aws.StringValue(aws.FormatTime(now)),
		},
	})
}

func (s *Store) query(ctx context.Context, in *dyn.QueryInput) ([]VendorPackage, error) {
	var result []VendorPackage
	for {
		out, err := s.client.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("query vendor packages: %w", err)
		}
		page := make([]VendorPackage, 0, len(out.Items))
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal vendor packages: %w", err)
		}
		result = append(result, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return result, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Activate moves a PENDING package to ACTIVE and inserts the vendor's
// notification in the same transaction.
func (s *Store) Activate(ctx context.Context, id string, activatedAt, expiresAt time.Time, n notify.Notification) error {
	put, err := s.outbox.PutItem(n)
	if err != nil {
		return err
	}
	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName:                &s.packagesTable,
					Key:                      idKey(id),
					UpdateExpression:         awsString("SET #s = :active, activated_at = :at, expires_at = :exp, updated_at = :at"),
					ConditionExpression:      awsString("#s = :pending"),
					ExpressionAttributeNames: map[string]string{"#s": "status"},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":active":  aws.StringValue(string(StatusActive)),
						":pending": aws.StringValue(string(StatusPending)),
						":at":      aws.StringValue(aws.FormatTime(activatedAt)),
						":exp":     aws.StringValue(aws.FormatTime(expiresAt)),
					},
				},
			},
			put,
		},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return ErrNotPending
		}
		return fmt.Errorf("activate vendor package: %w", err)
	}
	return nil
}

// Expire moves an ACTIVE package whose expiry has passed to EXPIRED.
func (s *Store) Expire(ctx context.Context, id string, now time.Time) error {
	ts := aws.FormatTime(now)
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.packagesTable,
		Key:                      idKey(id),
		UpdateExpression:         awsString("SET #s = :expired, updated_at = :now"),
		ConditionExpression:      awsString("#s = :active AND expires_at <= :now"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expired": aws.StringValue(string(StatusExpired)),
			":active":  aws.StringValue(string(StatusActive)),
			":now":     aws.StringValue(ts),
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotActive
		}
		return fmt.Errorf("expire vendor package: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }

func awsInt32(n int32) *int32 { return &n }
