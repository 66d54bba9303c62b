package toolserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipost/internal/pipeline"
	"recipost/internal/publish"
)

type fakeService struct {
	drafts   []string
	runs     []publish.Mode
	draftErr error
	runErr   error
	outcome  publish.Outcome
}

func (f *fakeService) Draft(_ context.Context, url string) (*pipeline.Draft, error) {
	f.drafts = append(f.drafts, url)
	if f.draftErr != nil {
		return nil, f.draftErr
	}
	return &pipeline.Draft{Title: "柠檬方块", Body: "酸甜可口", ImageURLs: []string{"https://cdn.example.com/0.jpg"}, ImageLimit: 9}, nil
}

func (f *fakeService) Run(_ context.Context, url string, mode publish.Mode) (*pipeline.Report, error) {
	f.runs = append(f.runs, mode)
	if f.runErr != nil {
		return nil, f.runErr
	}
	out := f.outcome
	out.Mode = mode
	return &pipeline.Report{Draft: &pipeline.Draft{Title: "柠檬方块", Body: "酸甜可口"}, Outcome: out}, nil
}

type rpcResult struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

func serve(t *testing.T, svc Service, lines ...string) []rpcResult {
	t.Helper()
	var out bytes.Buffer
	srv := New(svc, "recipost", "test", nil)
	require.NoError(t, srv.Serve(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"), &out))

	var results []rpcResult
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var r rpcResult
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), sc.Text())
		results = append(results, r)
	}
	return results
}

func decodeCall(t *testing.T, raw json.RawMessage) CallResult {
	t.Helper()
	var cr CallResult
	require.NoError(t, json.Unmarshal(raw, &cr))
	require.Len(t, cr.Content, 1)
	return cr
}

func TestHandshakeAndList(t *testing.T) {
	res := serve(t, &fakeService{},
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":"p","method":"ping"}`,
	)
	require.Len(t, res, 3, "notifications get no response")

	var init struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name string `json:"name"`
		} `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(res[0].Result, &init))
	assert.Equal(t, protocolVersion, init.ProtocolVersion)
	assert.Equal(t, "recipost", init.ServerInfo.Name)

	var list struct {
		Tools []Tool `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(res[1].Result, &list))
	var names []string
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolDraft, ToolSave, ToolPublish}, names)

	assert.JSONEq(t, `"p"`, string(res[2].ID))
	assert.JSONEq(t, `{}`, string(res[2].Result))
}

func TestNotificationWithIDGetsEmptyResult(t *testing.T) {
	res := serve(t, &fakeService{},
		`{"jsonrpc":"2.0","id":7,"method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":8,"method":"notifications/cancelled","params":{"requestId":3}}`,
	)
	require.Len(t, res, 2)
	for _, r := range res {
		assert.Nil(t, r.Error)
		assert.JSONEq(t, `{}`, string(r.Result))
	}
	assert.JSONEq(t, `7`, string(res[0].ID))
}

func TestDraftToolNeverRuns(t *testing.T) {
	svc := &fakeService{}
	res := serve(t, svc, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"draft_recipe_note","arguments":{"url":"https://www.thekitchn.com/lemon-bars"}}}`)
	require.Len(t, res, 1)

	cr := decodeCall(t, res[0].Result)
	assert.False(t, cr.IsError)
	assert.Contains(t, cr.Content[0].Text, "### 标题\n柠檬方块")
	assert.Equal(t, []string{"https://www.thekitchn.com/lemon-bars"}, svc.drafts)
	assert.Empty(t, svc.runs)
}

func TestSaveAndPublishToolsSelectMode(t *testing.T) {
	svc := &fakeService{outcome: publish.Outcome{Kind: publish.Drafted, ScreenshotPath: "/shots/done.png"}}
	res := serve(t, svc,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"save_recipe_draft","arguments":{"url":"a.com/x"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"generate_and_publish_recipe","arguments":{"url":"a.com/y"}}}`,
	)
	require.Len(t, res, 2)
	assert.Equal(t, []publish.Mode{publish.ModeDraft, publish.ModePublish}, svc.runs)

	cr := decodeCall(t, res[0].Result)
	assert.False(t, cr.IsError)
	assert.Contains(t, cr.Content[0].Text, "/shots/done.png")
}

func TestFailedOutcomeIsToolError(t *testing.T) {
	svc := &fakeService{outcome: publish.Outcome{
		Kind: publish.Failed, Stage: "LoggingIn", ErrorKind: publish.LoginTimeout,
		Reason: "login timed out", ScreenshotPath: "/shots/fail.png",
	}}
	res := serve(t, svc, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"generate_and_publish_recipe","arguments":{"url":"a.com/y"}}}`)
	cr := decodeCall(t, res[0].Result)
	assert.True(t, cr.IsError)
	assert.Contains(t, cr.Content[0].Text, "LoginTimeout")
	assert.Contains(t, cr.Content[0].Text, "/shots/fail.png")
}

func TestServiceErrorsAreToolErrors(t *testing.T) {
	svc := &fakeService{draftErr: errors.New("403 forbidden"), runErr: errors.New("no media downloaded")}
	res := serve(t, svc,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"draft_recipe_note","arguments":{"url":"a.com"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"save_recipe_draft","arguments":{"url":"a.com"}}}`,
	)
	require.Len(t, res, 2)
	for _, r := range res {
		assert.Nil(t, r.Error)
		assert.True(t, decodeCall(t, r.Result).IsError)
	}
}

func TestProtocolErrors(t *testing.T) {
	res := serve(t, &fakeService{},
		`{not json`,
		`{"jsonrpc":"1.0","id":1,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":2,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"delete_everything","arguments":{"url":"a.com"}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"draft_recipe_note","arguments":{}}}`,
	)
	require.Len(t, res, 5)
	codes := make([]int, len(res))
	for i, r := range res {
		require.NotNil(t, r.Error, i)
		codes[i] = r.Error.Code
	}
	assert.Equal(t, []int{codeParseError, codeInvalidRequest, codeMethodNotFound, codeInvalidParams, codeInvalidParams}, codes)
}

func TestServeStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(&fakeService{}, "recipost", "test", nil).Serve(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}
