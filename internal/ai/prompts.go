package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

const summarizeSystemPromptTmpl = `You are a news editor. Summarize the article in %s. Cover what happened, who is involved, and why it matters. Be specific about names and numbers mentioned in the article. Do NOT include any prefix like "Summary:" and start directly with the first sentence.`

const questionSystemPrompt = `You answer questions about a single news article. Use only facts stated in the article. If the article does not contain the answer, say so in one sentence. Answer in at most 4 sentences without any prefix.`

const reasonSystemPrompt = `You explain to a reader, in one or two friendly sentences, why an article was picked for them. Refer to their interests when they are relevant. Do not invent facts about the article.`

const preferenceSystemPrompt = `You infer reading preferences for a new user of a news app from what they told us during onboarding. Return ONLY valid JSON with the fields "categories" (array of 3 to 6 lowercase news categories, most relevant first), "time_of_day" (one of "morning", "afternoon", "evening", "night"), "reading_level" (one of "basic", "intermediate", "advanced"), "content_length" (one of "short", "medium", "long"), "confidence" (number between 0 and 1) and "reasoning" (one sentence).`

// summaryLengths maps a requested length to the sentence budget given to
// the model.
var summaryLengths = map[string]string{
	"short":  "2-3 sentences",
	"medium": "4-5 sentences",
	"long":   "2 short paragraphs",
}

// SummaryLength normalises a requested summary length, defaulting to
// "medium".
func SummaryLength(length string) string {
	if _, ok := summaryLengths[length]; ok {
		return length
	}
	return "medium"
}

// SummarizePrompt builds the prompt for summarising an article.
func SummarizePrompt(title, source, content, length string) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Article Title: %s\n", title)
	if source != "" {
		fmt.Fprintf(&b, "Source: %s\n", source)
	}
	b.WriteString("Article Content:\n")
	b.WriteString(content)

	return Prompt{
		System:      fmt.Sprintf(summarizeSystemPromptTmpl, summaryLengths[SummaryLength(length)]),
		User:        b.String(),
		Temperature: 0.3,
		MaxTokens:   512,
	}
}

// QuestionPrompt builds the prompt for answering a question about an
// article. The question leads the user message so that different questions
// about the same article never share a prompt prefix.
func QuestionPrompt(question, title, content string) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", strings.TrimSpace(question))
	fmt.Fprintf(&b, "Article Title: %s\n", title)
	b.WriteString("Article Content:\n")
	b.WriteString(content)

	return Prompt{
		System:      questionSystemPrompt,
		User:        b.String(),
		Temperature: 0.2,
		MaxTokens:   400,
	}
}

// ReasonPrompt builds the prompt explaining why an article suits a reader.
func ReasonPrompt(interests []string, title, category, description string) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Reader Interests: %s\n", strings.Join(interests, ", "))
	fmt.Fprintf(&b, "Article Title: %s\n", title)
	fmt.Fprintf(&b, "Category: %s\n", category)
	fmt.Fprintf(&b, "Description: %s\n", description)

	return Prompt{
		System:      reasonSystemPrompt,
		User:        b.String(),
		Temperature: 0.5,
		MaxTokens:   150,
	}
}

// PreferenceProfile is what the preference-inference prompt asks for.
type PreferenceProfile struct {
	Categories    []string `json:"categories"`
	TimeOfDay     string   `json:"time_of_day"`
	ReadingLevel  string   `json:"reading_level"`
	ContentLength string   `json:"content_length"`
	Confidence    float64  `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
}

// PreferencePrompt builds the onboarding preference-inference prompt.
func PreferencePrompt(ageBracket, profession, locale, location string, interests []string) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Stated Interests: %s\n", strings.Join(interests, ", "))
	fmt.Fprintf(&b, "Age Bracket: %s\n", orUnknown(ageBracket))
	fmt.Fprintf(&b, "Profession: %s\n", orUnknown(profession))
	fmt.Fprintf(&b, "Locale: %s\n", orUnknown(locale))
	fmt.Fprintf(&b, "Location: %s\n", orUnknown(location))

	return Prompt{
		System:      preferenceSystemPrompt,
		User:        b.String(),
		Temperature: 0.2,
		MaxTokens:   300,
	}
}

// ParsePreferenceProfile decodes a model answer to PreferencePrompt. An
// answer without categories is rejected.
func ParsePreferenceProfile(text string) (*PreferenceProfile, error) {
	var p PreferenceProfile
	if err := json.Unmarshal([]byte(extractJSON(text)), &p); err != nil {
		return nil, fmt.Errorf("parsing preference JSON: %w", err)
	}
	if len(p.Categories) == 0 {
		return nil, fmt.Errorf("preference answer has no categories")
	}
	for i, c := range p.Categories {
		p.Categories[i] = strings.ToLower(strings.TrimSpace(c))
	}
	p.Confidence = min(max(p.Confidence, 0), 1)
	return &p, nil
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

// extractJSON strips markdown code fences from a string that may contain
// JSON wrapped in ```json ... ``` or ``` ... ``` blocks.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	if after, found := strings.CutPrefix(s, "```json"); found {
		if idx := strings.LastIndex(after, "```"); idx >= 0 {
			after = after[:idx]
		}
		return strings.TrimSpace(after)
	}

	if after, found := strings.CutPrefix(s, "```"); found {
		if idx := strings.LastIndex(after, "```"); idx >= 0 {
			after = after[:idx]
		}
		return strings.TrimSpace(after)
	}

	return s
}
