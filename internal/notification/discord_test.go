package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordPostsEmbed(t *testing.T) {
	var got DiscordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, "")
	require.NoError(t, d.SendError(context.Background(), "year 2020 failed at Aligning"))

	require.Len(t, got.Embeds, 1)
	assert.Equal(t, colorRed, got.Embeds[0].Color)
	assert.Contains(t, got.Embeds[0].Description, "year 2020 failed at Aligning")
}

func TestDiscordEmptyURLIsNoop(t *testing.T) {
	d := NewDiscord("", "")
	assert.NoError(t, d.SendSuccess(context.Background(), "done"))

	var nilDiscord *Discord
	assert.NoError(t, nilDiscord.SendError(context.Background(), "boom"))
}

func TestDiscordStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscord("", srv.URL).SendSuccess(context.Background(), "done")
	assert.ErrorContains(t, err, "429")
}
