package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalogCoversEveryStatus(t *testing.T) {
	for _, entity := range []Entity{EntityIssue, EntityFundRequest} {
		for _, status := range Statuses(entity) {
			label := Describe(entity, status, LangEnglish)
			assert.NotEqual(t, string(status), label.Label, status)
			assert.Equal(t, Terminal(entity, status), label.Terminal, status)
			for _, lang := range []string{LangKannada, LangHindi} {
				assert.NotEqual(t, label.Label, Describe(entity, status, lang).Label, "%s/%s", status, lang)
			}
		}
	}
	assert.Len(t, Catalog(""), len(Catalog(EntityIssue))+len(Catalog(EntityFundRequest)))
}

func TestDescribeFallbacks(t *testing.T) {
	assert.Equal(t, "Pending", Describe(EntityFundRequest, StatusPending, "fr").Label)
	unknown := Describe(EntityIssue, "archived", LangEnglish)
	assert.Equal(t, "archived", unknown.Label)
	assert.Equal(t, ToneNeutral, unknown.Tone)
}

func TestMatchLanguage(t *testing.T) {
	assert.Equal(t, LangEnglish, MatchLanguage())
	assert.Equal(t, LangKannada, MatchLanguage("kn"))
	assert.Equal(t, LangHindi, MatchLanguage("", "hi-IN,hi;q=0.9,en;q=0.5"))
	assert.Equal(t, LangKannada, MatchLanguage("kn-IN", "hi"))
	assert.Equal(t, LangEnglish, MatchLanguage("!!"))
}
