//go:build integration

package dynamodb

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgduncan/go-query-cache/tokens"
)

const testTable = "tokens-test"

func setup(t *testing.T) *dynamodb.Client {
	t.Log("setup called")

	awsconfig, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion("local"))
	require.NoError(t, err)

	c := dynamodb.NewFromConfig(awsconfig)
	require.NoError(t, CreateTable(context.Background(), c, testTable))

	t.Cleanup(func() {
		t.Log("cleanup called")
		if _, err := c.DeleteTable(context.Background(), &dynamodb.DeleteTableInput{
			TableName: aws.String(testTable),
		}); err != nil {
			t.Log(err)
		}
	})

	return c
}

func TestStoreIntegration(t *testing.T) {
	c := setup(t)
	ctx := context.Background()

	s, err := New(ctx, c, &Config{Table: testTable, ItemExpiration: time.Minute})
	require.NoError(t, err)

	tests := []struct {
		name  string
		key   string
		value string
		hit   bool
	}{
		{name: "golden path - hit", key: tokens.KeyAccessToken, value: "hello", hit: true},
		{name: "golden path - miss", key: "key-miss"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.hit {
				require.NoError(t, s.Set(ctx, tt.key, tt.value))
			}

			got, err := s.Get(ctx, tt.key)
			if tt.hit {
				require.NoError(t, err)
				assert.Equal(t, tt.value, got)
			} else {
				assert.ErrorIs(t, err, tokens.ErrNoToken)
			}
		})
	}
}
