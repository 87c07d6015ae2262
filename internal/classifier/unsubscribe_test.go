package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseListUnsubscribe(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected []UnsubscribeMethod
	}{
		{
			name:     "mailto with subject",
			header:   "<mailto:unsubscribe@example.com?subject=unsubscribe>",
			expected: []UnsubscribeMethod{{Type: MethodMailto, URL: "mailto:unsubscribe@example.com?subject=unsubscribe"}},
		},
		{
			name:   "mailto and https",
			header: "<mailto:unsubscribe@example.com>, <https://example.com/unsubscribe>",
			expected: []UnsubscribeMethod{
				{Type: MethodMailto, URL: "mailto:unsubscribe@example.com"},
				{Type: MethodHTTP, URL: "https://example.com/unsubscribe"},
			},
		},
		{
			name:     "unsupported scheme",
			header:   "<ftp://example.com/unsubscribe>",
			expected: nil,
		},
		{
			name:     "unterminated",
			header:   "<https://example.com/unsubscribe",
			expected: nil,
		},
		{
			name:     "empty",
			header:   "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseListUnsubscribe(tt.header))
		})
	}
}

func TestHTTPUnsubscribeURL(t *testing.T) {
	url, ok := HTTPUnsubscribeURL("<mailto:u@example.com>, <https://example.com/u?id=1>")
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/u?id=1", url)

	_, ok = HTTPUnsubscribeURL("<mailto:u@example.com>")
	assert.False(t, ok)
}
