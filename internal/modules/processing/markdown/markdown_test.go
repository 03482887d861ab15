package markdown

import (
	"strings"
	"testing"
	"time"

	"github.com/aiassist/core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleConversation() *models.Conversation {
	at := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	c := models.NewConversation("u1", "friendly", at)
	c.AddMessage(models.RoleMessageUser, "How do I *reverse* a slice?", 0, at)
	c.AddMessage(models.RoleMessageAssistant, "Use `slices.Reverse`:\n\n```go\nslices.Reverse(s)\n```\n<script>alert(1)</script>", 12, at.Add(time.Minute))
	c.Metadata.Model = "gpt-4o-mini"
	return c
}

func TestTranscript(t *testing.T) {
	out := Transcript(sampleConversation(), false)
	assert.True(t, strings.HasPrefix(out, "# How do I *reverse* a slice?\n"))
	assert.Contains(t, out, "### You (2025-03-04 10:30 UTC)")
	assert.Contains(t, out, "### Assistant (2025-03-04 10:31 UTC)")
	assert.Contains(t, out, "slices.Reverse(s)")
}

func TestTranscript_FrontMatter(t *testing.T) {
	out := Transcript(sampleConversation(), true)
	require.True(t, strings.HasPrefix(out, "---\n"))
	end := strings.Index(out[4:], "\n---\n")
	require.Greater(t, end, 0)

	var header map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out[4:4+end]), &header))
	assert.Equal(t, "gpt-4o-mini", header["model"])
	assert.Equal(t, 2, header["messages"])
	assert.Equal(t, 12, header["totalTokens"])
}

func TestTranscriptHTML(t *testing.T) {
	out := TranscriptHTML(sampleConversation())
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<title>How do I *reverse* a slice?</title>")
	assert.Contains(t, out, "<em>reverse</em>")
	assert.Contains(t, out, `<code class="language-go">`)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "Model: gpt-4o-mini")
}

func TestRenderContent(t *testing.T) {
	assert.Equal(t, "", RenderContent("   "))
	assert.Contains(t, RenderContent("```mermaid\ngraph TD\n```"), `<pre class="mermaid">`)
}

func TestFilename(t *testing.T) {
	c := sampleConversation()
	c.Title = `a/b:c?`
	assert.Equal(t, "a-b-c-.md", Filename(c, "md"))
	c.Title = ""
	assert.Equal(t, "conversation.html", Filename(c, "html"))
}
