package monkey

import (
	"context"
	"errors"
	"testing"

	mrd "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/freundallein/packer/chassis/queue"
)

func TestNew_DisabledIsNil(t *testing.T) {
	require.Nil(t, New(0))
	var in *Injector
	require.NoError(t, in.RandomizeError(nil))
	boom := errors.New("boom")
	require.Equal(t, boom, in.RandomizeError(boom))
}

func TestRandomizeError_AlwaysFails(t *testing.T) {
	in := New(1)
	for i := 0; i < 100; i++ {
		require.ErrorIs(t, in.RandomizeError(nil), ErrMonkey)
	}
	boom := errors.New("boom")
	require.Equal(t, boom, in.RandomizeError(boom))
}

func TestWrapQueue(t *testing.T) {
	s := mrd.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	q := queue.InitRedisQueue(rdb, queue.Config{Name: "monkey"})

	require.Same(t, q, WrapQueue(q, nil))

	wrapped := WrapQueue(q, New(1))
	require.ErrorIs(t, wrapped.SendMessage(context.Background(), "x"), ErrMonkey)
	length, err := rdb.LLen(context.Background(), "packer:{monkey}:pending").Result()
	require.NoError(t, err)
	require.Zero(t, length)
}
