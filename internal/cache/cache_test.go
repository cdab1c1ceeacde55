package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisGetHit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisWithClient(client)

	mock.ExpectGet("news:abc").SetVal(`{"headline":"x"}`)

	val, err := c.Get(context.Background(), "news:abc")
	require.NoError(t, err)
	assert.Equal(t, `{"headline":"x"}`, val)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisGetMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisWithClient(client)

	mock.ExpectGet("news:missing").RedisNil()

	_, err := c.Get(context.Background(), "news:missing")
	assert.ErrorIs(t, err, ErrMiss)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSetWithTTL(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisWithClient(client)

	mock.ExpectSet("scan:latest", "payload", 5*time.Minute).SetVal("OK")

	err := c.Set(context.Background(), "scan:latest", "payload", 5*time.Minute)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisDelete(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisWithClient(client)

	mock.ExpectDel("config:min_price").SetVal(1)

	err := c.Delete(context.Background(), "config:min_price")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisInvalidatePattern(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisWithClient(client)

	mock.ExpectScan(0, "news:*", 100).SetVal([]string{"news:a", "news:b"}, 0)
	mock.ExpectDel("news:a").SetVal(1)
	mock.ExpectDel("news:b").SetVal(1)

	err := c.InvalidatePattern(context.Background(), "news:*")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryCacheExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", 50*time.Millisecond))
	val, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	time.Sleep(60 * time.Millisecond)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryInvalidatePattern(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "news:a", "1", time.Minute))
	require.NoError(t, m.Set(ctx, "scan:latest", "2", time.Minute))

	require.NoError(t, m.InvalidatePattern(ctx, "news:*"))

	_, err := m.Get(ctx, "news:a")
	assert.ErrorIs(t, err, ErrMiss)
	val, err := m.Get(ctx, "scan:latest")
	require.NoError(t, err)
	assert.Equal(t, "2", val)
}
