package story

import (
	"fmt"
	"strings"

	"github.com/yourusername/wordnest/internal/ai"
)

type draftWord struct {
	Word       string `json:"word"`
	Definition string `json:"definition"`
	Example    string `json:"example"`
}

type draft struct {
	Title      string      `json:"title"`
	Content    string      `json:"content"`
	Vocabulary []draftWord `json:"vocabulary"`
}

func buildPrompt(req Request) ai.Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a short story in English for a learner at level %s", req.Level)
	if req.Age > 0 {
		fmt.Fprintf(&b, " who is %d years old", req.Age)
	}
	b.WriteString(".\n")

	switch req.Mode {
	case ModePlacement:
		b.WriteString("The story is used to estimate the learner's vocabulary level, so use a natural spread of common and less common words.\n")
	case ModeTeacher:
		b.WriteString("A teacher will use the story as assignment material.\n")
	default:
		b.WriteString("Personalize the story so it reinforces the learner's vocabulary.\n")
	}
	if req.Topic != "" {
		fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	}
	if req.Difficulty != "" {
		fmt.Fprintf(&b, "Difficulty: %s\n", req.Difficulty)
	}
	writeList(&b, "Words that must appear", req.RequiredWords)
	writeList(&b, "Words the learner is studying (use them naturally)", req.UnknownWords)
	writeList(&b, "Words the learner already knows", req.KnownWords)
	writeList(&b, "Words that must not appear", req.ExcludedWords)

	b.WriteString("Respond with a single JSON object only: ")
	b.WriteString(`{"title": string, "content": string, "vocabulary": [{"word": string, "definition": string, "example": string}]}. `)
	b.WriteString(`List in "vocabulary" the words from the story that are likely new for this learner.`)

	return ai.Prompt{
		System:      "You are an English teacher who writes graded reading material.",
		User:        b.String(),
		MaxTokens:   1500,
		Temperature: 0.8,
	}
}

func writeList(b *strings.Builder, label string, words []string) {
	if len(words) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(words, ", "))
}

func defaultTitle(req Request) string {
	if req.Topic != "" {
		return "A Story About " + req.Topic
	}
	return "A Day of Discovery"
}

// fallbackDraft は生成サービスが使えないときの固定ストーリーです。
// 必須語と学習中の語は末尾の練習文に含めます。
func fallbackDraft(req Request) draft {
	var b strings.Builder
	b.WriteString("Mia woke up early and looked out of the window. The sky was bright and the birds were singing. ")
	b.WriteString("She packed a small bag with a book, an apple and a notebook, and walked to the park near her house. ")
	b.WriteString("Under a tall tree she opened her book and began to read. Every time she found a new word, she wrote it in her notebook. ")
	b.WriteString("By the afternoon her notebook was full of words, and she smiled because she knew a little more than she did that morning.")

	practice := make([]string, 0, len(req.RequiredWords)+len(req.UnknownWords))
	seen := make(map[string]struct{})
	for _, w := range append(append([]string{}, req.RequiredWords...), req.UnknownWords...) {
		w = strings.TrimSpace(w)
		key := strings.ToLower(w)
		if w == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		practice = append(practice, w)
	}
	if len(practice) > 0 {
		fmt.Fprintf(&b, "\n\nToday Mia practiced these words: %s.", strings.Join(practice, ", "))
	}

	return draft{
		Title:   defaultTitle(req),
		Content: b.String(),
	}
}
