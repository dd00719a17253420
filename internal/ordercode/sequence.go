package ordercode

import (
	"context"
	"fmt"
	"strconv"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/laundry-payflow/internal/aws"
)

// CounterName is the counter row order codes are drawn from.
const CounterName = "order_code"

// DynamoSequence is an atomic counter row (PK counter_name, attribute value).
// Every Next is one unconditional increment, so concurrent callers in any number
// of processes get distinct values.
type DynamoSequence struct {
	client aws.DynamoDBAPI
	table  string
	name   string
}

func NewDynamoSequence(client aws.DynamoDBAPI, table, name string) *DynamoSequence {
	return &DynamoSequence{client: client, table: table, name: name}
}

func (s *DynamoSequence) Next(ctx context.Context) (int64, error) {
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.table,
		Key: map[string]types.AttributeValue{
			"counter_name": aws.StringValue(s.name),
		},
		UpdateExpression:         awsString("SET #v = if_not_exists(#v, :zero) + :one"),
		ExpressionAttributeNames: map[string]string{"#v": "value"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": aws.NumberValue(0),
			":one":  aws.NumberValue(1),
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", s.name, err)
	}
	v, ok := out.Attributes["value"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("counter %s: no value returned", s.name)
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s: %w", s.name, err)
	}
	return n, nil
}

func awsString(s string) *string { return &s }
