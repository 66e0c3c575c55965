package ddb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	SDevice = "DEVICE"
	SAvail  = "AVAIL"
	SQueue  = "QUEUE"
)

func pkDevice(ns string) string { return fmt.Sprintf("%s#%s", SDevice, ns) }
func skAvail() string           { return SAvail }
func skQueue() string           { return SQueue }

// createTableIfNotExists creates the PK/SK table. An existing table is not an error.
func createTableIfNotExists(ctx context.Context, client *dynamodb.Client, table string) error {
	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: &table,
		AttributeDefinitions: []ddbTypes.AttributeDefinition{
			{AttributeName: awsString("PK"), AttributeType: ddbTypes.ScalarAttributeTypeS},
			{AttributeName: awsString("SK"), AttributeType: ddbTypes.ScalarAttributeTypeS},
		},
		KeySchema: []ddbTypes.KeySchemaElement{
			{AttributeName: awsString("PK"), KeyType: ddbTypes.KeyTypeHash},
			{AttributeName: awsString("SK"), KeyType: ddbTypes.KeyTypeRange},
		},
		BillingMode: ddbTypes.BillingModePayPerRequest,
	})
	var re *ddbTypes.ResourceInUseException
	if err != nil && !errors.As(err, &re) {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
