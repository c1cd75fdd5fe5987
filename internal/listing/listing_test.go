package listing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectValidatesURL(t *testing.T) {
	_, err := Connect(context.Background(), "", "db")
	require.ErrorContains(t, err, "mongodb url is required")

	_, err = Connect(context.Background(), "not-a-mongo-uri", "db")
	require.Error(t, err)
}
