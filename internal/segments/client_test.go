package segments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetSegmentsGroupsByWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "v1", r.URL.Query().Get("videoID"))
		w.Write([]byte(`[
			{"segment":[5.0,10.0],"UUID":"u1","category":"sponsor"},
			{"segment":[5.0,10.0],"UUID":"u2","category":"selfpromo"},
			{"segment":[20.0,25.0],"UUID":"u3","category":"sponsor"}
		]`))
	}))
	defer srv.Close()

	c := NewWithBaseURL(http.DefaultClient, srv.URL)
	ranges, err := c.GetSegments(context.Background(), "v1")
	require.NoError(t, err)
	require.Len(t, ranges, 2)
	require.Equal(t, 5.0, ranges[0].Start)
	require.ElementsMatch(t, []string{"u1", "u2"}, ranges[0].UUIDSet)
	require.Equal(t, 20.0, ranges[1].Start)
}

func TestGetSegmentsNotFoundReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewWithBaseURL(http.DefaultClient, srv.URL)
	ranges, err := c.GetSegments(context.Background(), "missing")
	require.NoError(t, err)
	require.Empty(t, ranges)
}

func TestGetSegmentsCaches(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`[{"segment":[1.0,2.0],"UUID":"u1","category":"sponsor"}]`))
	}))
	defer srv.Close()

	c := NewWithBaseURL(http.DefaultClient, srv.URL)
	_, err := c.GetSegments(context.Background(), "v1")
	require.NoError(t, err)
	_, err = c.GetSegments(context.Background(), "v1")
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestMarkViewed(t *testing.T) {
	var gotUUIDs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUUIDs = append(gotUUIDs, r.URL.Query().Get("UUID"))
	}))
	defer srv.Close()

	c := NewWithBaseURL(http.DefaultClient, srv.URL)
	require.NoError(t, c.MarkViewed(context.Background(), []string{"u1", "u2"}))
	require.Equal(t, []string{"u1", "u2"}, gotUUIDs)
}
