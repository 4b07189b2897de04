package texts

import (
	"math/rand"
	"strings"
)

// sentencePool is the fixed corpus challenge texts are sampled from.
var sentencePool = []string{
	"The quick brown fox jumps over the lazy dog in the sunny park",
	"Coding at midnight feels like a superpower until the bugs appear",
	"React components are fun until props start misbehaving again",
	"Every developer has tried turning it off and on at least twice",
	"JavaScript is the only language that can confuse and impress simultaneously",
	"Typing speed means nothing when autocorrect is your true enemy",
	"Socket connections are like friendships easy to start, hard to maintain",
	"Bugs in code are like mosquitoes always appearing where you least expect",
	"Sometimes the best debug tool is a long walk and a cup of coffee",
	"Deploying on Friday is an extreme sport for true developers",
}

// Provider hands out challenge texts. A room's text is sampled exactly
// once, at creation, and never regenerated.
type Provider struct {
	words     []string
	wordCount int
}

func NewProvider(wordCount int) *Provider {
	return &Provider{
		words:     strings.Fields(strings.Join(sentencePool, " ")),
		wordCount: wordCount,
	}
}

// ChallengeText returns a random sample of the word pool at the
// configured word count.
func (p *Provider) ChallengeText() string {
	out := make([]string, p.wordCount)
	for i := range out {
		out[i] = p.words[rand.Intn(len(p.words))]
	}
	return strings.Join(out, " ")
}
