package ai

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/ibeckermayer/prayerkit/internal/types"
)

var languageNames = map[types.Locale]string{
	types.LocalePT: "Brazilian Portuguese",
	types.LocaleEN: "English",
	types.LocaleES: "Spanish",
}

var audiences = map[types.Locale]string{
	types.LocalePT: "Christians in Brazil",
	types.LocaleEN: "Christians in the United States",
	types.LocaleES: "Christians in Spain and Latin America",
}

// fallbackThemes are used when topic research yields no theme.
var fallbackThemes = map[types.Locale][]string{
	types.LocalePT: {"esperança", "gratidão", "força", "paz", "clareza", "cura", "perdão"},
	types.LocaleEN: {"hope", "gratitude", "strength", "peace", "clarity", "healing", "forgiveness"},
	types.LocaleES: {"esperanza", "gratitud", "fuerza", "paz", "claridad", "sanación", "perdón"},
}

func languageName(l types.Locale) string {
	if n, ok := languageNames[l]; ok {
		return n
	}
	return languageNames[types.LocaleEN]
}

func fallbackTheme(l types.Locale) string {
	themes, ok := fallbackThemes[l]
	if !ok {
		themes = fallbackThemes[types.LocaleEN]
	}
	return themes[rand.IntN(len(themes))]
}

func topicPrompt(l types.Locale, class types.JobClass) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Search the web for a topic or sentiment that is drawing strong engagement among %s today. ", audiences[l])
	sb.WriteString("Prefer hope, perseverance, faith, or widely discussed biblical passages.\n")
	if class == types.ClassLong {
		sb.WriteString("Pick one main theme and exactly three related subthemes that can serve as chapters of a ten-minute video.\n")
	} else {
		sb.WriteString("Pick one concise theme suited to a thirty-second vertical video. Leave subthemes empty.\n")
	}
	fmt.Fprintf(&sb, "Write the theme in %s.\n", languageName(l))
	sb.WriteString(`Respond with only a JSON object: {"theme": "...", "subthemes": ["..."]}`)
	return sb.String()
}

func guidedScriptPrompt(theme string, l types.Locale, speakers []Speaker) string {
	names := make([]string, len(speakers))
	for i, s := range speakers {
		names[i] = s.Name
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a guided prayer of about ten minutes on the theme %q, in %s.\n", theme, languageName(l))
	fmt.Fprintf(&sb, "Write it as a dialogue between %s. ", strings.Join(names, " and "))
	sb.WriteString("Prefix every line with the speaker's name and a colon. Do not include stage directions.")
	return sb.String()
}

func shortPrayerPrompt(theme string, l types.Locale) string {
	return fmt.Sprintf(
		"Write a short prayer of three to five sentences on the theme %q, in %s. "+
			"A brief biblical quote is fine when it fits. Return only the prayer text.",
		theme, languageName(l))
}

func longPostPrompt(topic types.Topic, l types.Locale) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Prepare the metadata for a ten-minute prayer video on %q, in %s.\n", topic.Theme, languageName(l))
	if len(topic.Subthemes) > 0 {
		fmt.Fprintf(&sb, "Chapters: %s.\n", strings.Join(topic.Subthemes, "; "))
	}
	sb.WriteString("Respond with only a JSON object with these keys:\n")
	sb.WriteString(`{"title": "...", "description": "...", "hashtags": ["#..."], "timestamps": "00:00 ...\n02:30 ...", "tags": ["..."]}`)
	return sb.String()
}

func socialPostPrompt(theme string, l types.Locale) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Prepare the caption for a thirty-second prayer video on %q, in %s.\n", theme, languageName(l))
	sb.WriteString("Respond with only a JSON object with these keys:\n")
	sb.WriteString(`{"title": "...", "description": "...", "hashtags": ["#..."]}`)
	return sb.String()
}

func visualPrompt(b VisualBrief, l types.Locale) string {
	var sb strings.Builder
	sb.WriteString("Write one English prompt for an image generator describing a cinematic, photorealistic thumbnail.\n")
	fmt.Fprintf(&sb, "The image must show the title %q rendered in %s with high contrast.\n", CleanTitle(b.Title), languageName(l))
	fmt.Fprintf(&sb, "Context: %s\n", b.Description)
	fmt.Fprintf(&sb, "Prayer: %s\n", b.Script)
	sb.WriteString("Return only the prompt.")
	return sb.String()
}

func speechText(text string, speakers []Speaker) string {
	if len(speakers) > 1 {
		names := make([]string, len(speakers))
		for i, s := range speakers {
			names[i] = s.Name
		}
		return fmt.Sprintf("TTS the following dialogue between %s:\n\n%s", strings.Join(names, " and "), text)
	}
	return "Say in a calm, warm voice:\n\n" + text
}
