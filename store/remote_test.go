package store

import (
	"context"
	"os"
	"strconv"
	"testing"

	"cloud.google.com/go/firestore"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestFirestoreStore_Conformance(t *testing.T) {
	projectID := os.Getenv("FIRESTORE_PROJECT")
	if projectID == "" {
		t.Skip("FIRESTORE_PROJECT not set, skipping Firestore tests")
	}
	client, err := firestore.NewClient(context.Background(), projectID)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	runConformance(t, NewFirestoreStore(client, "typing-replay-test"))
}

func TestRedisStore_Conformance(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis tests")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	prefix := "typing-replay-test-" + strconv.FormatInt(docSeq.Add(1000), 10)
	t.Cleanup(func() {
		iter := rdb.Scan(context.Background(), 0, prefix+":*", 0).Iterator()
		for iter.Next(context.Background()) {
			rdb.Del(context.Background(), iter.Val())
		}
	})

	runConformance(t, NewRedisStore(rdb, prefix))
}
