package keyword

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		text string
		out  string
	}{
		{text: "", out: ""},
		{text: "Hello", out: "hello"},
		{text: "Gdańsk", out: "gdansk"},
		{text: "CAFÉ", out: "cafe"},
	}
	for _, fix := range fixtures {
		assert.Equal(fix.out, Fold(fix.text))
	}
}

func TestWordMatcher(t *testing.T) {
	assert := assert.New(t)

	m := NewWordMatcher([]string{"ass", "Bad Phrase", "  ", "naïve"})
	assert.Equal(3, m.Len())

	fixtures := []struct {
		text string
		out  string
	}{
		{text: "", out: ""},
		{text: "you ass!", out: "ass"},
		{text: "ASS", out: "ass"},
		{text: "first class passenger", out: ""},
		{text: "assess", out: ""},
		{text: "this is a bad phrase indeed", out: "Bad Phrase"},
		{text: "badphrase", out: ""},
		{text: "so NAIVE", out: "naïve"},
		{text: "ass and bad phrase", out: "ass"},
	}
	for _, fix := range fixtures {
		assert.Equal(fix.out, m.Match(fix.text), fix.text)
	}
}

func TestWordMatcherFirstInListOrder(t *testing.T) {
	assert := assert.New(t)

	m := NewWordMatcher([]string{"second", "first"})
	// list order decides, not position in the text
	assert.Equal("second", m.Match("first then second"))
}

func TestMatcherForCaches(t *testing.T) {
	assert := assert.New(t)

	a := MatcherFor([]string{"one", "two"})
	b := MatcherFor([]string{"one", "two"})
	c := MatcherFor([]string{"one"})
	assert.Same(a, b)
	assert.NotSame(a, c)
	assert.Empty(MatcherFor(nil).Match("anything"))
}
