package markdown

import (
	"html/template"
	"strings"
	"time"

	"github.com/aiassist/core/internal/models"
	"gopkg.in/yaml.v3"
)

const timestampLayout = "2006-01-02 15:04 MST"

var roleLabels = map[string]string{
	models.RoleMessageUser:      "You",
	models.RoleMessageAssistant: "Assistant",
	models.RoleMessageSystem:    "System",
}

func roleLabel(role string) string {
	if l, ok := roleLabels[role]; ok {
		return l
	}
	return role
}

type frontMatter struct {
	Title       string    `yaml:"title"`
	Date        time.Time `yaml:"date"`
	Updated     time.Time `yaml:"updated"`
	Model       string    `yaml:"model,omitempty"`
	Personality string    `yaml:"personality,omitempty"`
	Category    string    `yaml:"category,omitempty"`
	Messages    int       `yaml:"messages"`
	TotalTokens int       `yaml:"totalTokens"`
}

// Transcript renders c as a markdown document. System messages are left
// out. With frontMatter set a YAML header carries the metadata.
func Transcript(c *models.Conversation, withFrontMatter bool) string {
	var sb strings.Builder
	if withFrontMatter {
		header := frontMatter{
			Title:       c.Title,
			Date:        c.CreatedAt,
			Updated:     c.UpdatedAt,
			Model:       c.Metadata.Model,
			Personality: c.Metadata.Personality,
			Category:    c.Metadata.Category,
			Messages:    c.MessageCount(),
			TotalTokens: c.Metadata.TotalTokens,
		}
		yamlText, _ := yaml.Marshal(header)
		sb.WriteString("---\n")
		sb.WriteString(strings.TrimSpace(string(yamlText)))
		sb.WriteString("\n---\n\n")
	}
	sb.WriteString("# ")
	sb.WriteString(c.Title)
	sb.WriteString("\n")
	for _, m := range c.Messages {
		if m.Role == models.RoleMessageSystem {
			continue
		}
		sb.WriteString("\n### ")
		sb.WriteString(roleLabel(m.Role))
		sb.WriteString(" (")
		sb.WriteString(m.Timestamp.UTC().Format(timestampLayout))
		sb.WriteString(")\n\n")
		sb.WriteString(strings.TrimSpace(m.Content))
		sb.WriteString("\n")
	}
	return sb.String()
}

// TranscriptHTML renders c as a standalone HTML page. Each message body is
// converted from markdown separately so one message cannot break the
// layout of the next.
func TranscriptHTML(c *models.Conversation) string {
	var body strings.Builder
	for _, m := range c.Messages {
		if m.Role == models.RoleMessageSystem {
			continue
		}
		body.WriteString("    <section class=\"message ")
		body.WriteString(template.HTMLEscapeString(m.Role))
		body.WriteString("\">\n      <h3>")
		body.WriteString(template.HTMLEscapeString(roleLabel(m.Role)))
		body.WriteString(" <small>")
		body.WriteString(m.Timestamp.UTC().Format(timestampLayout))
		body.WriteString("</small></h3>\n")
		body.WriteString(RenderContent(m.Content))
		body.WriteString("    </section>\n")
	}
	info := ""
	if c.Metadata.Model != "" {
		info = "Model: " + c.Metadata.Model
	}
	return RenderDocument(body.String(), DocumentOptions{
		Title:  c.Title,
		Info:   info,
		Footer: "Exported " + c.UpdatedAt.UTC().Format(timestampLayout),
	})
}

// Filename builds a safe download name for c.
func Filename(c *models.Conversation, ext string) string {
	name := strings.TrimSpace(c.Title)
	if name == "" {
		name = "conversation"
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', ':', '*', '?', '<', '>', '|', '\n', '\r':
			return '-'
		}
		return r
	}, name)
	if len([]rune(name)) > 80 {
		name = string([]rune(name)[:80])
	}
	return name + "." + ext
}
