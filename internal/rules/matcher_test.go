package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
)

func TestMatchKeywords(t *testing.T) {
	tests := []struct {
		name     string
		mode     models.MatchMode
		keywords []string
		text     string
		want     []string
	}{
		{"substring hit", models.MatchContains, []string{"free", "info"}, "send me info please", []string{"info"}},
		{"substring miss", models.MatchContains, []string{"free", "info"}, "nice post", nil},
		{"case insensitive", models.MatchContains, []string{"FREE", "details"}, "Can you send me free Details?", []string{"FREE", "details"}},
		{"unicode folding", models.MatchContains, []string{"café"}, "CAFÉ menu?", []string{"café"}},
		{"substring inside word", models.MatchContains, []string{"info"}, "informative", []string{"info"}},
		{"word rejects partial", models.MatchWord, []string{"info"}, "informative", nil},
		{"word accepts punctuation", models.MatchWord, []string{"info"}, "info!", []string{"info"}},
		{"word phrase", models.MatchWord, []string{"price list"}, "Send the PRICE list pls", []string{"price list"}},
		{"exact whole text", models.MatchExact, []string{"link"}, "  Link ", []string{"link"}},
		{"exact rejects extra words", models.MatchExact, []string{"link"}, "link please", nil},
		{"blank keywords ignored", models.MatchContains, []string{" ", ""}, "anything", nil},
		{"empty text", models.MatchContains, []string{"a"}, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchKeywords(tt.mode, tt.keywords, tt.text))
		})
	}
}
