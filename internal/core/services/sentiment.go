package services

import (
	"math"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/lexical"
)

const sentimentThreshold = 0.2

var (
	positiveWords = map[string]bool{
		"great": true, "awesome": true, "love": true, "loved": true, "amazing": true,
		"excited": true, "fun": true, "perfect": true, "thanks": true, "thank": true,
		"good": true, "nice": true, "happy": true, "yay": true, "cool": true,
		"beautiful": true, "wonderful": true, "agree": true, "yes": true, "enjoy": true,
	}
	negativeWords = map[string]bool{
		"bad": true, "hate": true, "annoyed": true, "angry": true, "late": true,
		"cancelled": true, "canceled": true, "delayed": true, "expensive": true, "worried": true,
		"problem": true, "issue": true, "sick": true, "tired": true, "terrible": true,
		"awful": true, "no": true, "lost": true, "upset": true, "sad": true,
	}
	negations = map[string]bool{
		"not": true, "never": true, "dont": true, "don": true, "isnt": true, "wasnt": true,
	}
)

// ScoreSentiment derives the mood of a chat excerpt from a word lexicon.
// A negation flips the polarity of the word that follows it.
func ScoreSentiment(msgs []domain.ChatMessage) domain.Sentiment {
	pos, neg := 0, 0
	for _, m := range msgs {
		negate := false
		for _, tok := range lexical.Tokens(m.Text) {
			if len(tok) == 1 {
				// "don't" splits into "don" and "t".
				continue
			}
			if negations[tok] {
				negate = true
				continue
			}
			switch {
			case positiveWords[tok]:
				if negate {
					neg++
				} else {
					pos++
				}
			case negativeWords[tok]:
				if negate {
					pos++
				} else {
					neg++
				}
			}
			negate = false
		}
	}

	if pos+neg == 0 {
		return domain.Sentiment{Label: domain.SentimentNeutral, Score: 0}
	}
	score := float64(pos-neg) / float64(pos+neg)
	score = math.Round(score*100) / 100

	label := domain.SentimentNeutral
	switch {
	case score > sentimentThreshold:
		label = domain.SentimentPositive
	case score < -sentimentThreshold:
		label = domain.SentimentNegative
	}
	return domain.Sentiment{Label: label, Score: score}
}
