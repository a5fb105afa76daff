package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestegg-io/nestegg/internal/modules/portfolio"
)

const testSchema = `
CREATE TABLE push_tokens (
	user_id    TEXT PRIMARY KEY,
	token      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

func setupTokenRepo(t *testing.T) *TokenRepository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return NewTokenRepository(db, zerolog.Nop())
}

func TestTokenRepository(t *testing.T) {
	repo := setupTokenRepo(t)

	_, found, err := repo.Get("user-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.Save("user-1", "ExponentPushToken[abc]"))

	token, found, err := repo.Get("user-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ExponentPushToken[abc]", token)

	// Save replaces.
	require.NoError(t, repo.Save("user-1", "ExponentPushToken[def]"))
	token, _, err = repo.Get("user-1")
	require.NoError(t, err)
	assert.Equal(t, "ExponentPushToken[def]", token)

	require.NoError(t, repo.Delete("user-1"))
	_, found, err = repo.Get("user-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClientSend(t *testing.T) {
	var received Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/--/api/v2/push/send", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"data":{"status":"ok"}}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, zerolog.Nop())

	err := client.Send(context.Background(), Message{
		To:    "ExponentPushToken[abc]",
		Title: "Price alert: AAPL",
		Body:  "Apple Inc is up 6.0% at $106.00",
	})
	require.NoError(t, err)
	assert.Equal(t, "ExponentPushToken[abc]", received.To)
	assert.Equal(t, "default", received.Sound)
}

func TestClientSendServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, zerolog.Nop())

	err := client.Send(context.Background(), Message{To: "tok"})
	require.Error(t, err)
}

type captureSender struct {
	messages []Message
	err      error
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	c.messages = append(c.messages, msg)
	return c.err
}

func TestPriceAlerterFormatsMessage(t *testing.T) {
	repo := setupTokenRepo(t)
	require.NoError(t, repo.Save("user-1", "ExponentPushToken[abc]"))

	sender := &captureSender{}
	alerter := NewPriceAlerter(sender, repo, zerolog.Nop())

	pos := portfolio.Position{ID: "pos-1", Symbol: "AAPL", Name: "Apple Inc"}
	alerter.NotifyPriceMove(context.Background(), "user-1", pos, 100, 106)

	require.Len(t, sender.messages, 1)
	msg := sender.messages[0]
	assert.Equal(t, "ExponentPushToken[abc]", msg.To)
	assert.Equal(t, "Price alert: AAPL", msg.Title)
	assert.Equal(t, "Apple Inc is up 6.0% at $106.00", msg.Body)
	assert.Equal(t, "pos-1", msg.Data["positionId"])
}

func TestPriceAlerterDownMove(t *testing.T) {
	repo := setupTokenRepo(t)
	require.NoError(t, repo.Save("user-1", "tok"))

	sender := &captureSender{}
	alerter := NewPriceAlerter(sender, repo, zerolog.Nop())

	pos := portfolio.Position{ID: "pos-1", Symbol: "BTC", Name: "Bitcoin"}
	alerter.NotifyPriceMove(context.Background(), "user-1", pos, 100, 92)

	require.Len(t, sender.messages, 1)
	assert.Equal(t, "Bitcoin is down 8.0% at $92.00", sender.messages[0].Body)
}

func TestPriceAlerterNoTokenIsSilent(t *testing.T) {
	repo := setupTokenRepo(t)

	sender := &captureSender{}
	alerter := NewPriceAlerter(sender, repo, zerolog.Nop())

	alerter.NotifyPriceMove(context.Background(), "user-1", portfolio.Position{Symbol: "AAPL"}, 100, 110)
	assert.Empty(t, sender.messages)
}
