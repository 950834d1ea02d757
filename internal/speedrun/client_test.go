package speedrun

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type recordedCall struct {
	method    string
	body      []byte
	cookie    string
	userAgent string
}

func newTestServer(t *testing.T, replies map[string]string) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	var calls []recordedCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		call := recordedCall{
			method:    r.URL.Path[len("/api/v2/"):],
			body:      body,
			userAgent: r.UserAgent(),
		}
		if c, err := r.Cookie("PHPSESSID"); err == nil {
			call.cookie = c.Value
		}
		calls = append(calls, call)

		reply, ok := replies[call.method]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"unknown method"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestHTTPClient_GetGameData(t *testing.T) {
	srv, calls := newTestServer(t, map[string]string{
		"GetGameData": `{
			"game": {"id": "g1", "name": "Game", "rules": null},
			"categories": [{"id": "c1", "name": "Any%", "rules": "cat rules", "archived": false, "timeDirection": 0}],
			"levels": [{"id": "l1", "name": "World 1", "rules": "lvl"}],
			"variables": [{"id": "v1", "name": "Platform", "description": null, "categoryId": "c1", "levelId": null}],
			"values": [{"id": "x1", "name": "PC", "variableId": "v1", "rules": "pc", "archived": true}]
		}`,
	})

	client := NewHTTPClient(srv.URL+"/api/v2", "", "sess-123", 5*time.Second)
	data, err := client.GetGameData(context.Background(), "g1")
	require.NoError(t, err)

	assert.Equal(t, "", data.Game.Rules)
	require.Len(t, data.Categories, 1)
	assert.Equal(t, "Any%", data.Categories[0].Name)
	require.Len(t, data.Variables, 1)
	assert.Equal(t, "c1", data.Variables[0].CategoryID)
	assert.Equal(t, "", data.Variables[0].LevelID)
	assert.Equal(t, "", data.Variables[0].Description)
	require.Len(t, data.Values, 1)
	assert.True(t, data.Values[0].Archived)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "sess-123", call.cookie)
	assert.Equal(t, DefaultUserAgent, call.userAgent)
	assert.Equal(t, "g1", gjson.GetBytes(call.body, "gameId").String())
}

func TestHTTPClient_PutCategoryUpdateKeepsUnknownFields(t *testing.T) {
	srv, calls := newTestServer(t, map[string]string{
		"GetGameData":       `{"game":{"id":"g1"},"categories":[{"id":"c1","name":"Any%","rules":"old","timeDirection":1,"players":{"type":"exactly","value":1}}]}`,
		"PutCategoryUpdate": `{}`,
	})
	client := NewHTTPClient(srv.URL+"/api/v2", "bot", "", time.Second)
	ctx := context.Background()

	data, err := client.GetGameData(ctx, "g1")
	require.NoError(t, err)

	cat := data.Categories[0]
	cat.Rules = "new rules"
	require.NoError(t, client.PutCategoryUpdate(ctx, "g1", cat.ID, &cat))

	require.Len(t, *calls, 2)
	put := (*calls)[1]
	assert.Equal(t, "PutCategoryUpdate", put.method)
	assert.Equal(t, "bot", put.userAgent)
	assert.Equal(t, "", put.cookie)
	assert.Equal(t, "c1", gjson.GetBytes(put.body, "categoryId").String())
	assert.Equal(t, "new rules", gjson.GetBytes(put.body, "category.rules").String())
	assert.Equal(t, int64(1), gjson.GetBytes(put.body, "category.timeDirection").Int())
	assert.Equal(t, "exactly", gjson.GetBytes(put.body, "category.players.type").String())
}

func TestHTTPClient_PutVariableUpdate(t *testing.T) {
	srv, calls := newTestServer(t, map[string]string{"PutVariableUpdate": `{}`})
	client := NewHTTPClient(srv.URL+"/api/v2", "", "", time.Second)

	variable := &Variable{ID: "v1", Name: "Platform", Description: "desc"}
	values := []Value{{ID: "x1", Name: "PC", VariableID: "v1", Rules: ""}}
	require.NoError(t, client.PutVariableUpdate(context.Background(), "g1", "v1", variable, values))

	body := (*calls)[0].body
	assert.Equal(t, "desc", gjson.GetBytes(body, "variable.description").String())
	assert.True(t, gjson.GetBytes(body, "values.0.rules").Exists())
	assert.Equal(t, "", gjson.GetBytes(body, "values.0.rules").String())
}

func TestHTTPClient_Errors(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"GetSession": `{"error":"Not signed in"}`,
	})
	client := NewHTTPClient(srv.URL+"/api/v2", "", "", time.Second)
	ctx := context.Background()

	_, err := client.GetSession(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAPI))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "GetSession", apiErr.Method)
	assert.Equal(t, "Not signed in", apiErr.Message)

	_, err = client.GetAuditLogList(ctx, "g1", 1)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestHTTPClient_NullErrorIsSuccess(t *testing.T) {
	for name, reply := range map[string]string{
		"null":  `{"error": null, "session": {"signedIn": true, "user": {"id": "u1", "name": "bot"}}}`,
		"empty": `{"error": "", "session": {"signedIn": true, "user": {"id": "u1", "name": "bot"}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv, _ := newTestServer(t, map[string]string{"GetSession": reply})
			client := NewHTTPClient(srv.URL+"/api/v2", "", "s", time.Second)

			session, err := client.GetSession(context.Background())
			require.NoError(t, err)
			require.NotNil(t, session.User)
			assert.Equal(t, "u1", session.User.ID)
		})
	}
}

func TestHTTPClient_GetSession(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"GetSession": `{"session":{"signedIn":true,"user":{"id":"u1","name":"bot"},"gameModeratorList":[{"gameId":"g1","userId":"u1","level":-1},{"gameId":"g2","userId":"u1","level":1}]}}`,
	})
	client := NewHTTPClient(srv.URL+"/api/v2", "", "s", time.Second)

	session, err := client.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session.User)
	assert.Equal(t, "u1", session.User.ID)
	require.Len(t, session.GameModeratorList, 2)
	assert.Equal(t, LevelVerifier, session.GameModeratorList[0].Level)
	assert.Equal(t, LevelSuperModerator, session.GameModeratorList[1].Level)
}

func TestMarshalWithoutRawDocument(t *testing.T) {
	v := Value{ID: "x1", Name: "PC", VariableID: "v1", Rules: "r"}
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, "r", gjson.GetBytes(data, "rules").String())
	assert.Equal(t, "v1", gjson.GetBytes(data, "variableId").String())
}

func TestAuditLogList_UserName(t *testing.T) {
	list := &AuditLogList{UserList: []User{{ID: "u1", Name: "alice"}}}

	name, ok := list.UserName("u1")
	assert.True(t, ok)
	assert.Equal(t, "alice", name)

	_, ok = list.UserName("u2")
	assert.False(t, ok)
}

func TestModeratorLevelString(t *testing.T) {
	assert.Equal(t, "verifier", LevelVerifier.String())
	assert.Equal(t, "moderator", LevelModerator.String())
	assert.Equal(t, "super-moderator", LevelSuperModerator.String())
	assert.Equal(t, "level(7)", ModeratorLevel(7).String())
}
