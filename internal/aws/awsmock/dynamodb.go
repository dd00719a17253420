// Package awsmock holds in-memory stand-ins for the AWS clients used in tests.
// The DynamoDB fake evaluates the small expression subset the stores use:
// SET assignments, AND/OR conditions with parenthesised groups,
// attribute_exists/attribute_not_exists, comparisons, and key conditions with an
// optional BETWEEN on the range key.
package awsmock

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// DynamoDB is a goroutine-safe in-memory table set.
type DynamoDB struct {
	mu     sync.Mutex
	keys   map[string][]string
	ranges map[string]string
	tables map[string]map[string]item

	// Err, when set, is returned by every call.
	Err error
	// TransactErr, when set, is returned by TransactWriteItems before any evaluation.
	TransactErr error

	PutCalls      int
	UpdateCalls   int
	TransactCalls int
	QueryCalls    int
	Transacts     []*dyn.TransactWriteItemsInput
}

// NewDynamoDB creates a fake; keys maps each table to its key attribute names
// (partition key first).
func NewDynamoDB(keys map[string][]string) *DynamoDB {
	return &DynamoDB{keys: keys, ranges: map[string]string{}, tables: map[string]map[string]item{}}
}

// WithIndex records the range key of a secondary index so queries naming only
// the partition key still come back ordered.
func (m *DynamoDB) WithIndex(index, rangeAttr string) *DynamoDB {
	m.ranges[index] = rangeAttr
	return m
}

// Writes is the number of mutating calls seen so far.
func (m *DynamoDB) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PutCalls + m.UpdateCalls + m.TransactCalls
}

// Seed stores an item without conditions.
func (m *DynamoDB) Seed(table string, it item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := m.keyOf(table, it)
	if err != nil {
		panic(err)
	}
	m.table(table)[k] = clone(it)
}

// Item returns a copy of the stored item with the given key attributes.
func (m *DynamoDB) Item(table string, key item) item {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := m.keyOf(table, key)
	if err != nil {
		return nil
	}
	it, ok := m.table(table)[k]
	if !ok {
		return nil
	}
	return clone(it)
}

// Items returns copies of every item in table.
func (m *DynamoDB) Items(table string) []item {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []item
	for _, it := range m.table(table) {
		out = append(out, clone(it))
	}
	return out
}

func (m *DynamoDB) table(name string) map[string]item {
	t, ok := m.tables[name]
	if !ok {
		t = map[string]item{}
		m.tables[name] = t
	}
	return t
}

func (m *DynamoDB) keyOf(table string, it item) (string, error) {
	names, ok := m.keys[table]
	if !ok {
		return "", fmt.Errorf("awsmock: unknown table %q", table)
	}
	parts := make([]string, 0, len(names))
	for _, n := range names {
		v, ok := it[n]
		if !ok {
			return "", fmt.Errorf("awsmock: %s missing key attribute %q", table, n)
		}
		parts = append(parts, render(v))
	}
	return strings.Join(parts, "|"), nil
}

func (m *DynamoDB) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.PutCalls++
	k, err := m.keyOf(*in.TableName, in.Item)
	if err != nil {
		return nil, err
	}
	cur := m.table(*in.TableName)[k]
	if in.ConditionExpression != nil && !evalCondition(cur, *in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: strPtr("put condition failed")}
	}
	m.table(*in.TableName)[k] = clone(in.Item)
	return &dyn.PutItemOutput{}, nil
}

func (m *DynamoDB) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	k, err := m.keyOf(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	it, ok := m.table(*in.TableName)[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: clone(it)}, nil
}

func (m *DynamoDB) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.UpdateCalls++
	k, err := m.keyOf(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	cur := m.table(*in.TableName)[k]
	if in.ConditionExpression != nil && !evalCondition(cur, *in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: strPtr("update condition failed")}
	}
	next, err := applyUpdate(cur, in.Key, derefStr(in.UpdateExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	m.table(*in.TableName)[k] = next
	return &dyn.UpdateItemOutput{Attributes: clone(next)}, nil
}

func (m *DynamoDB) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.TransactCalls++
	m.Transacts = append(m.Transacts, in)
	if m.TransactErr != nil {
		return nil, m.TransactErr
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		table, key, cond, names, values, err := m.transactTarget(ti)
		if err != nil {
			return nil, err
		}
		k, err := m.keyOf(table, key)
		if err != nil {
			return nil, err
		}
		reasons[i] = types.CancellationReason{Code: strPtr("None")}
		if cond != nil && !evalCondition(m.table(table)[k], *cond, names, values) {
			reasons[i] = types.CancellationReason{Code: strPtr("ConditionalCheckFailed")}
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             strPtr("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range in.TransactItems {
		switch {
		case ti.Put != nil:
			k, _ := m.keyOf(*ti.Put.TableName, ti.Put.Item)
			m.table(*ti.Put.TableName)[k] = clone(ti.Put.Item)
		case ti.Update != nil:
			u := ti.Update
			k, _ := m.keyOf(*u.TableName, u.Key)
			next, err := applyUpdate(m.table(*u.TableName)[k], u.Key, derefStr(u.UpdateExpression), u.ExpressionAttributeNames, u.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			m.table(*u.TableName)[k] = next
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (m *DynamoDB) transactTarget(ti types.TransactWriteItem) (string, item, *string, map[string]string, item, error) {
	switch {
	case ti.Put != nil:
		return *ti.Put.TableName, ti.Put.Item, ti.Put.ConditionExpression, ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues, nil
	case ti.Update != nil:
		return *ti.Update.TableName, ti.Update.Key, ti.Update.ConditionExpression, ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues, nil
	case ti.ConditionCheck != nil:
		return *ti.ConditionCheck.TableName, ti.ConditionCheck.Key, ti.ConditionCheck.ConditionExpression, ti.ConditionCheck.ExpressionAttributeNames, ti.ConditionCheck.ExpressionAttributeValues, nil
	}
	return "", nil, nil, nil, nil, errors.New("awsmock: unsupported transact item")
}

var betweenRe = regexp.MustCompile(`^(\S+) BETWEEN (:\w+) AND (:\w+)$`)

func (m *DynamoDB) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.QueryCalls++

	names, values := in.ExpressionAttributeNames, in.ExpressionAttributeValues
	kc := derefStr(in.KeyConditionExpression)
	hashPart, rangePart, _ := strings.Cut(kc, " AND ")
	hashAttr, hashVal, ok := strings.Cut(hashPart, " = ")
	if !ok {
		return nil, fmt.Errorf("awsmock: unsupported key condition %q", kc)
	}
	hashAttr = resolve(hashAttr, names)

	var rangeAttr string
	var lo, hi types.AttributeValue
	if rangePart != "" {
		mm := betweenRe.FindStringSubmatch(strings.TrimSpace(rangePart))
		if mm == nil {
			if a, v, ok := strings.Cut(rangePart, " = "); ok {
				rangeAttr = resolve(a, names)
				lo, hi = values[v], values[v]
			} else {
				return nil, fmt.Errorf("awsmock: unsupported range condition %q", rangePart)
			}
		} else {
			rangeAttr = resolve(mm[1], names)
			lo, hi = values[mm[2]], values[mm[3]]
		}
	}

	var matched []item
	for _, it := range m.table(*in.TableName) {
		hv, ok := it[hashAttr]
		if !ok || !equal(hv, values[hashVal]) {
			continue
		}
		if rangeAttr != "" {
			rv, ok := it[rangeAttr]
			if !ok {
				continue
			}
			if c, ok := compare(rv, lo); !ok || c < 0 {
				continue
			}
			if c, ok := compare(rv, hi); !ok || c > 0 {
				continue
			}
		}
		if in.FilterExpression != nil && !evalCondition(it, *in.FilterExpression, names, values) {
			continue
		}
		matched = append(matched, it)
	}

	sortAttr := rangeAttr
	if sortAttr == "" && in.IndexName != nil {
		sortAttr = m.ranges[*in.IndexName]
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i][sortAttr], matched[j][sortAttr]
		if a == nil || b == nil {
			return render(matched[i][hashAttr]) < render(matched[j][hashAttr])
		}
		c, _ := compare(a, b)
		if in.ScanIndexForward != nil && !*in.ScanIndexForward {
			return c > 0
		}
		return c < 0
	})

	start := 0
	if in.ExclusiveStartKey != nil {
		if n, ok := in.ExclusiveStartKey[offsetKey].(*types.AttributeValueMemberN); ok {
			start, _ = strconv.Atoi(n.Value)
		}
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	var lek item
	if in.Limit != nil && start+int(*in.Limit) < len(matched) {
		end = start + int(*in.Limit)
		lek = item{offsetKey: &types.AttributeValueMemberN{Value: strconv.Itoa(end)}}
	}

	out := make([]item, 0, end-start)
	for _, it := range matched[start:end] {
		out = append(out, clone(it))
	}
	return &dyn.QueryOutput{Items: out, Count: int32(len(out)), LastEvaluatedKey: lek}, nil
}

const offsetKey = "__offset"
