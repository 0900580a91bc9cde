package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ErrItemNotFound = errors.New("database: item not found")

// Key is a primary key made of string attributes.
type Key map[string]string

func (k Key) attributes() map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(k))
	for name, value := range k {
		out[name] = S(value)
	}
	return out
}

func (k Key) existsCondition() string {
	for name := range k {
		return fmt.Sprintf("attribute_exists(%s)", name)
	}
	return ""
}

func S(value string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: value}
}

func Bool(value bool) types.AttributeValue {
	return &types.AttributeValueMemberBOOL{Value: value}
}

// Put writes item, replacing any item with the same key.
func (db *Database) Put(ctx context.Context, table string, item interface{}) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal %s item: %w", table, err)
	}
	if _, err := db.svc.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(table), Item: av}); err != nil {
		return fmt.Errorf("put %s: %w", table, err)
	}
	return nil
}

// Get reads one item by key; a missing item yields ErrItemNotFound.
func Get[T any](ctx context.Context, db *Database, table string, key Key) (T, error) {
	var out T
	res, err := db.svc.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            key.attributes(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return out, fmt.Errorf("get %s: %w", table, err)
	}
	if res.Item == nil {
		return out, fmt.Errorf("get %s: %w", table, ErrItemNotFound)
	}
	if err := attributevalue.UnmarshalMap(res.Item, &out); err != nil {
		return out, fmt.Errorf("unmarshal %s item: %w", table, err)
	}
	return out, nil
}

// Update is a SET expression built field by field.
type Update struct {
	expr   string
	names  map[string]string
	values map[string]types.AttributeValue
}

func (u *Update) Set(attr string, value types.AttributeValue) *Update {
	if u.names == nil {
		u.names = map[string]string{}
		u.values = map[string]types.AttributeValue{}
	}
	clause := "#" + attr + " = :" + attr
	if u.expr == "" {
		u.expr = "SET " + clause
	} else {
		u.expr += ", " + clause
	}
	u.names["#"+attr] = attr
	u.values[":"+attr] = value
	return u
}

// Apply runs the update against an existing item and decodes the new image. Updating a
// missing key yields ErrItemNotFound instead of creating a partial item.
func Apply[T any](ctx context.Context, db *Database, table string, key Key, u *Update) (T, error) {
	var out T
	if u == nil || u.expr == "" {
		return out, fmt.Errorf("update %s: empty update", table)
	}
	res, err := db.svc.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       key.attributes(),
		UpdateExpression:          aws.String(u.expr),
		ExpressionAttributeNames:  u.names,
		ExpressionAttributeValues: u.values,
		ConditionExpression:       aws.String(key.existsCondition()),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return out, fmt.Errorf("update %s: %w", table, ErrItemNotFound)
		}
		return out, fmt.Errorf("update %s: %w", table, err)
	}
	if err := attributevalue.UnmarshalMap(res.Attributes, &out); err != nil {
		return out, fmt.Errorf("unmarshal updated %s item: %w", table, err)
	}
	return out, nil
}

// Query selects items by partition key on a table or index.
type Query struct {
	Table     string
	Index     string
	Attribute string
	Value     string
	// Descending walks the sort key newest first.
	Descending bool
	// Limit stops after this many items; zero reads every page.
	Limit int
}

// QueryAll follows pagination until the partition or the limit is exhausted.
func QueryAll[T any](ctx context.Context, db *Database, q Query) ([]T, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(q.Table),
		KeyConditionExpression:    aws.String("#pk = :pk"),
		ExpressionAttributeNames:  map[string]string{"#pk": q.Attribute},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": S(q.Value)},
		ScanIndexForward:          aws.Bool(!q.Descending),
	}
	if q.Index != "" {
		input.IndexName = aws.String(q.Index)
	}

	var out []T
	paginator := dynamodb.NewQueryPaginator(db.svc, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s[%s]: %w", q.Table, q.Index, err)
		}
		var items []T
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal %s page: %w", q.Table, err)
		}
		out = append(out, items...)
		if q.Limit > 0 && len(out) >= q.Limit {
			return out[:q.Limit], nil
		}
	}
	return out, nil
}

// ScanWhere reads a whole table keeping items where attr equals value.
func ScanWhere[T any](ctx context.Context, db *Database, table, attr string, value types.AttributeValue) ([]T, error) {
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(table),
		FilterExpression:          aws.String("#f = :f"),
		ExpressionAttributeNames:  map[string]string{"#f": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":f": value},
	}

	var out []T
	paginator := dynamodb.NewScanPaginator(db.svc, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		var items []T
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal %s page: %w", table, err)
		}
		out = append(out, items...)
	}
	return out, nil
}
