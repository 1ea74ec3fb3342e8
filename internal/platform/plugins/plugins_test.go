package plugins

import (
	"testing"

	"github.com/LouYuanbo1/crosspost/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"csdn", "jianshu", "juejin", "zhihu"}, r.IDs())

	tests := []struct {
		in      string
		want    string
		scraper bool
	}{
		{"掘金", "juejin", true},
		{"Juejin", "juejin", true},
		{"CSDN", "csdn", true},
		{"知乎", "zhihu", true},
		{"zhihu.com", "zhihu", true},
		{"简书", "jianshu", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			e, ok := r.Resolve(tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.want, e.ID)
			assert.NotNil(t, e.Publisher)
			assert.Equal(t, tt.want, e.Publisher.ID())
			_, ok = r.Scraper(tt.in)
			assert.Equal(t, tt.scraper, ok)
		})
	}

	_, ok := r.Resolve("medium")
	assert.False(t, ok)
}

func TestCSDNParsesStaticPages(t *testing.T) {
	s, ok := NewRegistry().Scraper("csdn")
	require.True(t, ok)
	_, ok = s.(platform.StaticStatsParser)
	assert.True(t, ok)
}
