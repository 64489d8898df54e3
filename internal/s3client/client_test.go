package s3client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	c := TestClient(t, "audio-test")
	require.Equal(t, "audio-test", c.BucketName())

	require.NoError(t, c.PutObject(ctx, "audio/note-1/abc", []byte("mp3 bytes"), "audio/mpeg"))

	data, err := c.GetObject(ctx, "audio/note-1/abc")
	require.NoError(t, err)
	require.Equal(t, []byte("mp3 bytes"), data)

	require.NoError(t, c.DeleteObject(ctx, "audio/note-1/abc"))

	_, err = c.GetObject(ctx, "audio/note-1/abc")
	require.ErrorIs(t, err, ErrObjectNotFound)
}

func TestClient_DeleteMissingIsNotError(t *testing.T) {
	c := TestClient(t, "audio-test")
	require.NoError(t, c.DeleteObject(context.Background(), "never/written"))
}

func TestClient_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	c := TestClient(t, "audio-test")

	require.NoError(t, c.PutObject(ctx, "k", []byte("one"), "audio/mpeg"))
	require.NoError(t, c.PutObject(ctx, "k", []byte("two"), "audio/mpeg"))

	data, err := c.GetObject(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("two"), data)
}
