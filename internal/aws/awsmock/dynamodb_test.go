package awsmock

import (
	"context"
	"errors"
	"testing"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func n(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }
func p(v string) *string              { return &v }

func TestPutItem_NotExistsCondition(t *testing.T) {
	db := NewDynamoDB(map[string][]string{"t": {"id"}})
	in := &dyn.PutItemInput{TableName: p("t"), Item: item{"id": s("a")}, ConditionExpression: p("attribute_not_exists(id)")}

	_, err := db.PutItem(context.Background(), in)
	require.NoError(t, err)
	_, err = db.PutItem(context.Background(), in)
	var ccf *types.ConditionalCheckFailedException
	assert.True(t, errors.As(err, &ccf))
}

func TestUpdateItem_ConditionAndSet(t *testing.T) {
	db := NewDynamoDB(map[string][]string{"t": {"id"}})
	db.Seed("t", item{"id": s("a"), "status": s("PENDING")})

	upd := &dyn.UpdateItemInput{
		TableName:                 p("t"),
		Key:                       item{"id": s("a")},
		UpdateExpression:          p("SET #s = :new, attempts = if_not_exists(attempts, :zero) + :one"),
		ConditionExpression:       p("#s = :old AND (#s = :old OR #s = :other)"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: item{":new": s("PAID"), ":old": s("PENDING"), ":other": s("X"), ":zero": n("0"), ":one": n("1")},
	}
	_, err := db.UpdateItem(context.Background(), upd)
	require.NoError(t, err)

	got := db.Item("t", item{"id": s("a")})
	assert.Equal(t, "PAID", got["status"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "1", got["attempts"].(*types.AttributeValueMemberN).Value)

	_, err = db.UpdateItem(context.Background(), upd)
	var ccf *types.ConditionalCheckFailedException
	assert.True(t, errors.As(err, &ccf))
}

func TestUpdateItem_NestedConditionGroups(t *testing.T) {
	db := NewDynamoDB(map[string][]string{"t": {"id"}})
	db.Seed("t", item{"id": s("a"), "status": s("IN_PROGRESS"), "at": s("2025-01-10T09:00:00Z")})

	upd := func(stale string) error {
		_, err := db.UpdateItem(context.Background(), &dyn.UpdateItemInput{
			TableName:                 p("t"),
			Key:                       item{"id": s("a")},
			UpdateExpression:          p("SET at = :now"),
			ConditionExpression:       p("#s = :failed OR (#s = :inp AND at <= :stale)"),
			ExpressionAttributeNames:  map[string]string{"#s": "status"},
			ExpressionAttributeValues: item{":failed": s("FAILED"), ":inp": s("IN_PROGRESS"), ":stale": s(stale), ":now": s("2025-01-10T10:00:00Z")},
		})
		return err
	}

	var ccf *types.ConditionalCheckFailedException
	assert.True(t, errors.As(upd("2025-01-10T08:00:00Z"), &ccf))
	require.NoError(t, upd("2025-01-10T09:30:00Z"))
	assert.Equal(t, "2025-01-10T10:00:00Z", db.Item("t", item{"id": s("a")})["at"].(*types.AttributeValueMemberS).Value)
}

func TestTransactWriteItems_AllOrNothing(t *testing.T) {
	db := NewDynamoDB(map[string][]string{"a": {"id"}, "b": {"id"}})
	db.Seed("b", item{"id": s("x"), "status": s("DONE")})

	_, err := db.TransactWriteItems(context.Background(), &dyn.TransactWriteItemsInput{TransactItems: []types.TransactWriteItem{
		{Put: &types.Put{TableName: p("a"), Item: item{"id": s("1")}}},
		{ConditionCheck: &types.ConditionCheck{TableName: p("b"), Key: item{"id": s("x")}, ConditionExpression: p("#s = :p"),
			ExpressionAttributeNames: map[string]string{"#s": "status"}, ExpressionAttributeValues: item{":p": s("PENDING")}}},
	}})
	var tce *types.TransactionCanceledException
	require.True(t, errors.As(err, &tce))
	assert.Nil(t, db.Item("a", item{"id": s("1")}))
}

func TestQuery_RangeAndPaging(t *testing.T) {
	db := NewDynamoDB(map[string][]string{"t": {"id"}})
	for i, ts := range []string{"2025-01-01", "2025-01-15", "2025-02-01"} {
		db.Seed("t", item{"id": n(string(rune('1' + i))), "v": s("v1"), "at": s(ts)})
	}
	db.Seed("t", item{"id": n("9"), "v": s("v1")})

	var all []item
	var start map[string]types.AttributeValue
	for {
		out, err := db.Query(context.Background(), &dyn.QueryInput{
			TableName:                 p("t"),
			IndexName:                 p("idx"),
			KeyConditionExpression:    p("v = :v AND at BETWEEN :lo AND :hi"),
			ExpressionAttributeValues: item{":v": s("v1"), ":lo": s("2025-01-01"), ":hi": s("2025-01-31")},
			Limit:                     func() *int32 { l := int32(1); return &l }(),
			ExclusiveStartKey:         start,
		})
		require.NoError(t, err)
		all = append(all, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	require.Len(t, all, 2)
	assert.Equal(t, "2025-01-01", all[0]["at"].(*types.AttributeValueMemberS).Value)
}
