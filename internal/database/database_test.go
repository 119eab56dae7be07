package database

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestConnectRejectsEmptyDSN(t *testing.T) {
	_, err := Connect("  ")
	require.Error(t, err)
}

func TestConnectOpensSQLite(t *testing.T) {
	db, err := Connect("sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, db.Exec("SELECT 1").Error)
}

func TestConnectRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client, err := ConnectRedis(context.Background(), "redis://"+server.Addr())
	require.NoError(t, err)
	defer client.Close()

	_, err = ConnectRedis(context.Background(), "")
	require.Error(t, err)
}

func TestConnectRedisStopsWhenContextCancelled(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	addr := server.Addr()
	server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ConnectRedis(ctx, "redis://"+addr)
	require.Error(t, err)
}

func TestConnectNATSRejectsEmptyURL(t *testing.T) {
	_, err := ConnectNATS("", "storefront-test")
	require.Error(t, err)
}
