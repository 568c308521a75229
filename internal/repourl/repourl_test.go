package repourl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	valid := []string{
		"https://github.com/acme/widget",
		"https://github.com/acme/widget/",
		"https://www.github.com/acme/widget",
		"http://github.com/acme/widget.git",
		"https://github.com/some-org/repo.name-v2",
	}
	for _, url := range valid {
		assert.True(t, Validate(url), url)
	}

	invalid := []string{
		"",
		"github.com/acme/widget",
		"https://gitlab.com/acme/widget",
		"https://github.com/acme",
		"https://github.com/acme/widget/tree/main",
		"https://github.com/acme/widget?tab=readme",
		"https://github.com/acme/widget#readme",
		"ftp://github.com/acme/widget",
	}
	for _, url := range invalid {
		assert.False(t, Validate(url), url)
	}
}

func TestCanonicalize(t *testing.T) {
	cases := map[string]string{
		"https://github.com/acme/widget":      "acme/widget",
		"https://github.com/acme/widget/":     "acme/widget",
		"https://github.com/acme/widget.git":  "acme/widget",
		"https://github.com/acme/widget.git/": "acme/widget",
	}
	for in, want := range cases {
		assert.Equal(t, want, Canonicalize(in), in)
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	for _, in := range []string{
		"https://github.com/acme/widget",
		"https://github.com/acme/widget.git",
	} {
		once := Canonicalize(in)
		assert.Equal(t, once, Canonicalize(once))
	}
}

func TestSplit(t *testing.T) {
	owner, name := Split("acme/widget")
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widget", name)
}
