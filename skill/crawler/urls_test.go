package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"none", "no links here", []string{}},
		{"trailing punctuation", "see https://go.dev/doc. and http://example.com/a, ok?", []string{"https://go.dev/doc", "http://example.com/a"}},
		{"dedupe keeps first order", "https://b.com https://a.com https://b.com", []string{"https://b.com", "https://a.com"}},
		{"balanced parens kept", "wiki https://en.wikipedia.org/wiki/Go_(language) is nice", []string{"https://en.wikipedia.org/wiki/Go_(language)"}},
		{"wrapping parens stripped", "(https://example.com/x)", []string{"https://example.com/x"}},
		{"cjk punctuation", "看看 https://example.cn/page。", []string{"https://example.cn/page"}},
		{"ftp ignored", "ftp://files.example.com/x", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractURLs(tt.text))
		})
	}
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://example.com"))
	assert.NoError(t, ValidateURL("http://127.0.0.1:8080/path?q=1"))
	assert.Error(t, ValidateURL(""))
	assert.Error(t, ValidateURL("example.com"))
	assert.Error(t, ValidateURL("mailto:a@b.com"))
	assert.Error(t, ValidateURL("https://"))
	assert.Error(t, ValidateURL("http://[::1"))
}
