package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	genai "google.golang.org/genai"
)

func TestJoinTextParts(t *testing.T) {
	cases := []struct {
		name  string
		parts []*genai.Part
		want  string
	}{
		{
			name:  "single part",
			parts: []*genai.Part{{Text: `{"verdict":"verified"}`}},
			want:  `{"verdict":"verified"}`,
		},
		{
			name: "empty first part with payload in later parts",
			parts: []*genai.Part{
				{Text: ""},
				{Text: `{"verdict":`},
				{Text: `"verified"}`},
			},
			want: `{"verdict":"verified"}`,
		},
		{
			name:  "nil part skipped",
			parts: []*genai.Part{nil, {Text: "ok"}},
			want:  "ok",
		},
		{
			name:  "no parts",
			parts: nil,
			want:  "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, joinTextParts(tc.parts))
		})
	}
}
