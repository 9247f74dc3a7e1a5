package atscheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bold score",
			in:   "**Score:** 82%",
			want: "<strong>Score:</strong> 82%",
		},
		{
			name: "plain lines joined with breaks",
			in:   "first\nsecond",
			want: "first<br>second",
		},
		{
			name: "bullet list",
			in:   "Strengths:\n* Go\n* **Kubernetes**\nDone",
			want: "Strengths:<ul><li>Go</li><li><strong>Kubernetes</strong></li></ul>Done",
		},
		{
			name: "dash bullets",
			in:   "- one\n- two",
			want: "<ul><li>one</li><li>two</li></ul>",
		},
		{
			name: "html is escaped",
			in:   `<script>alert("x")</script> **<b>bold</b>**`,
			want: "&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt; <strong>&lt;b&gt;bold&lt;/b&gt;</strong>",
		},
		{
			name: "unterminated bold left alone",
			in:   "**open",
			want: "**open",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderMarkdown(tt.in))
		})
	}
}
