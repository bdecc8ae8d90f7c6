package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "scrape-finished", map[string]int{"count": 2})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "other", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "scrape-finished", msgs[0].Topic)
	require.JSONEq(t, `{"count":2}`, string(msgs[0].Data))

	msgs[0].Topic = "modified"
	require.Equal(t, "scrape-finished", pub.Messages()[0].Topic)

	_, err = pub.Publish(context.Background(), "bad", make(chan int))
	require.Error(t, err)
	require.Len(t, pub.Messages(), 2)
}
