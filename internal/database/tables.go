package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-chat/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

const tableWaitTimeout = 2 * time.Minute

type keySchema struct {
	hash  string
	sort  string
	index string
}

type tableSchema struct {
	name    string
	primary keySchema
	indexes []keySchema
}

// ChatTables describes the tables the chat repository reads and writes.
var ChatTables = []tableSchema{
	{
		name:    model.SessionsTable,
		primary: keySchema{hash: "sessionId"},
		indexes: []keySchema{
			{index: model.SessionsByCustomerIndex, hash: "customerId", sort: "lastActivityAt"},
		},
	},
	{
		name:    model.MessagesTable,
		primary: keySchema{hash: "pk"},
		indexes: []keySchema{
			{index: model.MessagesBySessionIndex, hash: "sessionId", sort: "createdAt"},
		},
	},
}

func (k keySchema) elements() []types.KeySchemaElement {
	out := []types.KeySchemaElement{{AttributeName: aws.String(k.hash), KeyType: types.KeyTypeHash}}
	if k.sort != "" {
		out = append(out, types.KeySchemaElement{AttributeName: aws.String(k.sort), KeyType: types.KeyTypeRange})
	}
	return out
}

func (t tableSchema) createInput() *dynamodb.CreateTableInput {
	seen := map[string]bool{}
	var attrs []types.AttributeDefinition
	declare := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		attrs = append(attrs, types.AttributeDefinition{AttributeName: aws.String(name), AttributeType: types.ScalarAttributeTypeS})
	}

	declare(t.primary.hash)
	declare(t.primary.sort)
	var gsis []types.GlobalSecondaryIndex
	for _, idx := range t.indexes {
		declare(idx.hash)
		declare(idx.sort)
		gsis = append(gsis, types.GlobalSecondaryIndex{
			IndexName:  aws.String(idx.index),
			KeySchema:  idx.elements(),
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}

	return &dynamodb.CreateTableInput{
		TableName:              aws.String(t.name),
		KeySchema:              t.primary.elements(),
		AttributeDefinitions:   attrs,
		GlobalSecondaryIndexes: gsis,
		BillingMode:            types.BillingModePayPerRequest,
	}
}

// EnsureTables creates any missing chat table and waits until it is active. Existing tables
// are left as they are.
func (db *Database) EnsureTables(ctx context.Context, log zerolog.Logger) error {
	for _, t := range ChatTables {
		_, err := db.svc.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.name)})
		if err == nil {
			continue
		}
		var missing *types.ResourceNotFoundException
		if !errors.As(err, &missing) {
			return fmt.Errorf("describe %s: %w", t.name, err)
		}

		log.Info().Str("table", t.name).Msg("creating table")
		if _, err := db.svc.CreateTable(ctx, t.createInput()); err != nil {
			return fmt.Errorf("create %s: %w", t.name, err)
		}
		waiter := dynamodb.NewTableExistsWaiter(db.svc)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.name)}, tableWaitTimeout); err != nil {
			return fmt.Errorf("wait for %s: %w", t.name, err)
		}
	}
	return nil
}
