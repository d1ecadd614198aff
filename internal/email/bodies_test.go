package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBodies(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantText string
		wantHTML string
	}{
		{
			name:     "plain text",
			content:  "Hi alice, confirm at https://x/y",
			wantText: "Hi alice, confirm at https://x/y",
		},
		{
			name:     "inline markup",
			content:  "Hi <b>alice</b>",
			wantText: "Hi alice",
			wantHTML: "Hi <b>alice</b>",
		},
		{
			name:     "fully wrapped",
			content:  "<p>Hi alice</p>",
			wantText: "Hi alice",
			wantHTML: "<p>Hi alice</p>",
		},
		{
			name:     "address in angle brackets",
			content:  "Reply to <help@acme.test> if stuck",
			wantText: "Reply to <help@acme.test> if stuck",
		},
		{
			name:     "comparison",
			content:  "expires in < 24 hours",
			wantText: "expires in < 24 hours",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, html := Bodies(tt.content)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantHTML, html)
		})
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"paragraphs", "<p>Hi alice</p><p>Welcome to Acme</p>", "Hi alice\n\nWelcome to Acme"},
		{"line breaks", "Hi alice,<br>thanks<br/>Acme", "Hi alice,\nthanks\nAcme"},
		{"link keeps target", `Confirm <a href="https://x/y">here</a>`, "Confirm here (https://x/y)"},
		{"bare link", `<a href="https://x/y">https://x/y</a>`, "https://x/y"},
		{"entities", "<b>Tom &amp; Jerry</b>", "Tom & Jerry"},
		{"style dropped", "<style>p { color: red }</style><p>Hi</p>", "Hi"},
		{"list", "<ul><li>one</li><li>two</li></ul>", "one\ntwo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.in))
		})
	}
}
