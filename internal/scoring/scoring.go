// Package scoring は課題の解答を採点する純粋関数を提供します。
// どの課題種別でも満点は 100 点です。
package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/yourusername/wordnest/internal/blanks"
)

// MaxScore は全課題種別で共通の満点です。
const MaxScore = 100

// 課題種別
const (
	TypeFillBlanks   = "fill-blanks"
	TypeWordMatching = "word-matching"
	TypeCustomWords  = "custom-words"
)

const noAnswersFeedback = "No answers provided."

// Result は採点結果です。
type Result struct {
	Score    int    `json:"score"`
	MaxScore int    `json:"maxScore"`
	Feedback string `json:"feedback"`
}

// BlankAnswer は穴埋め 1 箇所分の解答と正解の組です。
type BlankAnswer struct {
	Answer        string `json:"answer"`
	CorrectAnswer string `json:"correctAnswer"`
}

// MatchAnswer は単語と定義の組み合わせ 1 件分です。
type MatchAnswer struct {
	Word               string `json:"word,omitempty"`
	SelectedDefinition string `json:"selectedDefinition"`
	CorrectDefinition  string `json:"correctDefinition"`
}

// FillBlanks は穴埋め課題を採点します。
// 完全一致に加え、どちらか一方が他方に末尾 "s" を付けた形なら正解とします。
func FillBlanks(answers []BlankAnswer) Result {
	if len(answers) == 0 {
		return noAnswers()
	}
	correct := 0
	for _, a := range answers {
		if blankMatches(a.Answer, a.CorrectAnswer) {
			correct++
		}
	}
	score := percentage(correct, len(answers))
	return Result{
		Score:    score,
		MaxScore: MaxScore,
		Feedback: fmt.Sprintf("You filled %d of %d blanks correctly. %s", correct, len(answers), encouragement(score)),
	}
}

func blankMatches(answer, correct string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	c := strings.ToLower(strings.TrimSpace(correct))
	if a == "" || c == "" {
		return a == c && a != ""
	}
	return a == c || a == c+"s" || c == a+"s"
}

// WordMatching は単語と定義の組み合わせ課題を採点します。定義は完全一致で比較します。
func WordMatching(answers []MatchAnswer) Result {
	if len(answers) == 0 {
		return noAnswers()
	}
	correct := 0
	for _, a := range answers {
		if a.SelectedDefinition == a.CorrectDefinition {
			correct++
		}
	}
	score := percentage(correct, len(answers))
	return Result{
		Score:    score,
		MaxScore: MaxScore,
		Feedback: fmt.Sprintf("You matched %d of %d words correctly. %s", correct, len(answers), encouragement(score)),
	}
}

// CustomWords は指定語を使った作文課題を採点します。
// 指定語が本文中に部分文字列として現れれば使用済みとみなします（"cat" は "category" でも可）。
func CustomWords(text string, required []string) Result {
	if len(required) == 0 {
		return noAnswers()
	}
	lowered := strings.ToLower(text)
	used := 0
	var missing []string
	for _, w := range required {
		needle := strings.ToLower(strings.TrimSpace(w))
		if needle != "" && strings.Contains(lowered, needle) {
			used++
			continue
		}
		missing = append(missing, w)
	}
	score := percentage(used, len(required))
	feedback := fmt.Sprintf("You used %d of %d required words. %s", used, len(required), encouragement(score))
	if len(missing) > 0 {
		feedback += " Missing: " + strings.Join(missing, ", ") + "."
	}
	return Result{Score: score, MaxScore: MaxScore, Feedback: feedback}
}

// AnswerKey は保存済み課題から取り出した正解情報です。
type AnswerKey struct {
	BlankPositions      []blanks.Position
	MatchingDefinitions map[string]string
	RequiredWords       []string
}

type blankEntry struct {
	Index         *int   `json:"index"`
	Answer        string `json:"answer"`
	CorrectAnswer string `json:"correctAnswer"`
}

type matchEntry struct {
	Word               string `json:"word"`
	SelectedDefinition string `json:"selectedDefinition"`
	CorrectDefinition  string `json:"correctDefinition"`
}

// Evaluate は提出された生の解答を課題種別に応じて解釈し採点します。
// 解答が欠けている・配列でないなど不正な形の場合はエラーにせず 0 点を返します。
// 正解は key を優先し、key が空の場合のみ解答に含まれる正解を使います。
func Evaluate(assignmentType string, raw json.RawMessage, key AnswerKey) (Result, error) {
	switch assignmentType {
	case TypeFillBlanks:
		var payload struct {
			Blanks *[]blankEntry `json:"blanks"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil || payload.Blanks == nil {
			return noAnswers(), nil
		}
		return FillBlanks(fillBlankPairs(*payload.Blanks, key.BlankPositions)), nil

	case TypeWordMatching:
		var payload struct {
			Matches *[]matchEntry `json:"matches"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil || payload.Matches == nil {
			return noAnswers(), nil
		}
		return WordMatching(matchPairs(*payload.Matches, key.MatchingDefinitions)), nil

	case TypeCustomWords:
		var payload struct {
			Story *string `json:"story"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil || payload.Story == nil {
			return noAnswers(), nil
		}
		return CustomWords(*payload.Story, key.RequiredWords), nil

	default:
		return Result{}, fmt.Errorf("unknown assignment type: %s", assignmentType)
	}
}

func fillBlankPairs(entries []blankEntry, positions []blanks.Position) []BlankAnswer {
	if len(positions) == 0 {
		pairs := make([]BlankAnswer, len(entries))
		for i, e := range entries {
			pairs[i] = BlankAnswer{Answer: e.Answer, CorrectAnswer: e.CorrectAnswer}
		}
		return pairs
	}

	byIndex := make(map[int]string, len(entries))
	for i, e := range entries {
		idx := i
		if e.Index != nil {
			idx = *e.Index
		}
		byIndex[idx] = e.Answer
	}
	pairs := make([]BlankAnswer, len(positions))
	for i, p := range positions {
		pairs[i] = BlankAnswer{Answer: byIndex[p.Index], CorrectAnswer: p.Word}
	}
	return pairs
}

func matchPairs(entries []matchEntry, definitions map[string]string) []MatchAnswer {
	if len(definitions) == 0 {
		pairs := make([]MatchAnswer, len(entries))
		for i, e := range entries {
			pairs[i] = MatchAnswer{Word: e.Word, SelectedDefinition: e.SelectedDefinition, CorrectDefinition: e.CorrectDefinition}
		}
		return pairs
	}

	selected := make(map[string]string, len(entries))
	for _, e := range entries {
		selected[strings.ToLower(strings.TrimSpace(e.Word))] = e.SelectedDefinition
	}
	pairs := make([]MatchAnswer, 0, len(definitions))
	for word, def := range definitions {
		// 未回答は空文字のまま比較され不正解になる
		sel := selected[strings.ToLower(word)]
		pairs = append(pairs, MatchAnswer{Word: word, SelectedDefinition: sel, CorrectDefinition: def})
	}
	return pairs
}

// Passed は合格ライン（満点の 70%）に達しているかを返します。
func Passed(score, maxScore int) bool {
	return float64(score) >= float64(maxScore)*0.7
}

func percentage(n, total int) int {
	if total <= 0 {
		return 0
	}
	score := int(math.Round(float64(n) / float64(total) * 100))
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

func encouragement(score int) string {
	switch {
	case score == MaxScore:
		return "Perfect!"
	case score >= 70:
		return "Great job!"
	case score >= 50:
		return "Good effort, keep practicing."
	default:
		return "Keep practicing, you'll get there."
	}
}

func noAnswers() Result {
	return Result{Score: 0, MaxScore: MaxScore, Feedback: noAnswersFeedback}
}
