package caption

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipost/internal/recipe"
)

// fakeLLM answers chat completions with the queued contents, in order.
func fakeLLM(t *testing.T, replies ...string) (*httptest.Server, *[]openai.ChatCompletionRequest) {
	t.Helper()
	var seen []openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen = append(seen, req)

		content := ""
		if len(seen) <= len(replies) {
			content = replies[len(seen)-1]
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:     "chatcmpl-test",
			Object: "chat.completion",
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestGenerate(t *testing.T) {
	srv, seen := fakeLLM(t,
		`{"ingredients": ["面粉 1杯", "柠檬 2个"], "steps": ["烤底", "倒入柠檬糊"]}`,
		"```json\n{\"title\": \"绝了！酸甜柠檬方块\", \"content\": \"**周末**来一份🍋\\n- 烤底\\n- 倒糊\\n#烘焙 #柠檬\"}\n```",
	)
	g := New(Config{BaseURL: srv.URL + "/", APIKey: "test-key", Model: "gpt-test"}, nil)

	res, details, err := g.Generate(context.Background(), &recipe.ExtractedRecipe{Title: "Lemon Bars", BodyText: "flour, lemons"}, Limits{Title: 20, Body: 1000})
	require.NoError(t, err)

	assert.Equal(t, []string{"烤底", "倒入柠檬糊"}, details.Steps)
	assert.Equal(t, "绝了！酸甜柠檬方块", res.Title)
	assert.Equal(t, "周末来一份🍋\n• 烤底\n• 倒糊\n#烘焙 #柠檬", res.Body)

	require.Len(t, *seen, 2)
	first, second := (*seen)[0], (*seen)[1]
	assert.Equal(t, "gpt-test", first.Model)
	require.NotNil(t, first.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, first.ResponseFormat.Type)
	assert.Contains(t, first.Messages[1].Content, "flour, lemons")
	assert.Contains(t, second.Messages[1].Content, "面粉 1杯、柠檬 2个")
	assert.Contains(t, second.Messages[1].Content, "2. 倒入柠檬糊")
	assert.Contains(t, second.Messages[1].Content, "不能超过18个字符")
}

func TestCaptionRepairsJSON(t *testing.T) {
	srv, _ := fakeLLM(t, `{"title": "快手早餐", "content": "三分钟搞定",}`)
	g := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "m"}, nil)

	res, err := g.Caption(context.Background(), "Breakfast", &Details{}, Limits{Title: 20, Body: 1000})
	require.NoError(t, err)
	assert.Equal(t, "快手早餐", res.Title)
	assert.Equal(t, "三分钟搞定", res.Body)
}

func TestCaptionFallsBackOnEmptyReply(t *testing.T) {
	srv, _ := fakeLLM(t, "")
	g := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "m"}, nil)

	res, err := g.Caption(context.Background(), "Soup", &Details{Steps: []string{"boil", "serve"}}, Limits{Title: 20, Body: 1000})
	require.NoError(t, err)
	assert.Equal(t, "Soup", res.Title)
	assert.Equal(t, "boil\nserve", res.Body)
}

func TestDetailsTruncatesSourceText(t *testing.T) {
	srv, seen := fakeLLM(t, `{"ingredients": [], "steps": []}`)
	g := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "m"}, nil)

	_, err := g.Details(context.Background(), &recipe.ExtractedRecipe{BodyText: strings.Repeat("汤", 5000)})
	require.NoError(t, err)
	assert.Equal(t, maxSourceRunes, strings.Count((*seen)[0].Messages[1].Content, "汤"))
}

func TestStripMarkdown(t *testing.T) {
	in := "## 做法\n**第一步** 切菜\n* 第二步 [看这里](https://x.com)\n#家常菜 #快手菜"
	assert.Equal(t, "做法\n第一步 切菜\n• 第二步 看这里\n#家常菜 #快手菜", StripMarkdown(in))
}
