// Package assignment は教師が作成する課題と、学習者の提出・採点を扱います。
package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/yourusername/wordnest/internal/apperr"
	"github.com/yourusername/wordnest/internal/badges"
	"github.com/yourusername/wordnest/internal/blanks"
	"github.com/yourusername/wordnest/internal/learning"
	"github.com/yourusername/wordnest/internal/metrics"
	"github.com/yourusername/wordnest/internal/scoring"
)

// Repository は課題機能が使う永続化操作です。
type Repository interface {
	GetUser(ctx context.Context, id string) (*learning.User, error)
	GetStory(ctx context.Context, id string) (*learning.Story, error)
	CreateAssignment(ctx context.Context, a *learning.Assignment) error
	GetAssignment(ctx context.Context, id string) (*learning.Assignment, error)
	ListAssignments(ctx context.Context, filter learning.AssignmentFilter) ([]learning.Assignment, error)
	DeleteAssignment(ctx context.Context, id string) error
	CreateSubmission(ctx context.Context, sub *learning.Submission) error
	ListSubmissions(ctx context.Context, assignmentID string) ([]learning.Submission, error)
}

// BadgeRefresher は採点後にバッジを再判定します。
type BadgeRefresher interface {
	Refresh(ctx context.Context, userID string) ([]badges.Definition, error)
}

// MatchingPair は語彙マッチング課題の単語と定義の組です。
type MatchingPair struct {
	Word       string `json:"word" validate:"required,max=128"`
	Definition string `json:"definition" validate:"required,max=1000"`
}

// CreateRequest は課題作成の入力です。
// 穴埋め課題は storyId か text のどちらかと blankWords を指定します。
type CreateRequest struct {
	Title          string         `json:"title" validate:"required,max=255"`
	Instructions   string         `json:"instructions,omitempty" validate:"max=2000"`
	AssignmentType string         `json:"assignmentType" validate:"required,oneof=fill-blanks word-matching custom-words"`
	StoryID        string         `json:"storyId,omitempty"`
	Text           string         `json:"text,omitempty"`
	BlankWords     []string       `json:"blankWords,omitempty" validate:"required_if=AssignmentType fill-blanks"`
	MatchingPairs  []MatchingPair `json:"matchingPairs,omitempty" validate:"required_if=AssignmentType word-matching,dive"`
	RequiredWords  []string       `json:"requiredWords,omitempty" validate:"required_if=AssignmentType custom-words"`
	DueDate        *time.Time     `json:"dueDate,omitempty"`
}

// SubmitRequest は提出の入力です。answers の形は課題種別ごとに異なります。
type SubmitRequest struct {
	Answers          json.RawMessage `json:"answers"`
	TimeSpentSeconds int             `json:"timeSpentSeconds,omitempty" validate:"gte=0"`
}

// SubmissionResult は採点済みの提出です。
type SubmissionResult struct {
	ID           string    `json:"id"`
	AssignmentID string    `json:"assignmentId"`
	StudentID    string    `json:"studentId"`
	Score        int       `json:"score"`
	MaxScore     int       `json:"maxScore"`
	Percentage   int       `json:"percentage"`
	Feedback     string    `json:"feedback"`
	SubmittedAt  time.Time `json:"submittedAt"`
	Passed       bool      `json:"passed"`
}

// Service は課題の作成・提出・採点を行います。
type Service struct {
	repo   Repository
	badges BadgeRefresher
	logger *zap.Logger
}

// NewService は Service を作成します。badges は nil でも構いません。
func NewService(repo Repository, badgeSvc BadgeRefresher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, badges: badgeSvc, logger: logger.Named("assignment")}
}

// Create は課題を作成します。穴埋め課題は本文から穴埋め位置を求めて保存します。
func (s *Service) Create(ctx context.Context, teacherID string, req CreateRequest) (*learning.Assignment, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := apperr.Validate(req); err != nil {
		return nil, err
	}

	a := &learning.Assignment{
		TeacherID:      teacherID,
		Title:          req.Title,
		Instructions:   strings.TrimSpace(req.Instructions),
		AssignmentType: req.AssignmentType,
		DueDate:        req.DueDate,
	}

	switch req.AssignmentType {
	case scoring.TypeFillBlanks:
		text, storyID, err := s.sourceText(ctx, teacherID, req)
		if err != nil {
			return nil, err
		}
		modified, positions := blanks.Blank(text, req.BlankWords)
		if len(positions) == 0 {
			return nil, apperr.Validation("none of the blankWords appear in the text")
		}
		a.StoryID = storyID
		a.BlankedText = modified
		a.BlankPositions = positions

	case scoring.TypeWordMatching:
		a.MatchingWords = make([]string, 0, len(req.MatchingPairs))
		a.MatchingDefinitions = make(map[string]string, len(req.MatchingPairs))
		for _, p := range req.MatchingPairs {
			word := strings.TrimSpace(p.Word)
			if _, dup := a.MatchingDefinitions[word]; dup {
				return nil, apperr.Validation(fmt.Sprintf("duplicate matching word: %s", word))
			}
			a.MatchingWords = append(a.MatchingWords, word)
			a.MatchingDefinitions[word] = strings.TrimSpace(p.Definition)
		}

	case scoring.TypeCustomWords:
		for _, w := range req.RequiredWords {
			if w = strings.TrimSpace(w); w != "" {
				a.RequiredWords = append(a.RequiredWords, w)
			}
		}
		if len(a.RequiredWords) == 0 {
			return nil, apperr.Validation("requiredWords is required")
		}
	}

	if err := s.repo.CreateAssignment(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info("Assignment created", zap.String("assignment_id", a.ID), zap.String("type", a.AssignmentType), zap.String("teacher_id", teacherID))
	return a, nil
}

func (s *Service) sourceText(ctx context.Context, teacherID string, req CreateRequest) (string, *string, error) {
	if req.StoryID == "" {
		if strings.TrimSpace(req.Text) == "" {
			return "", nil, apperr.Validation("storyId or text is required")
		}
		return req.Text, nil, nil
	}
	st, err := s.repo.GetStory(ctx, req.StoryID)
	if err != nil {
		if errors.Is(err, learning.ErrNotFound) {
			return "", nil, apperr.NotFound("Story")
		}
		return "", nil, err
	}
	if st.UserID != teacherID {
		return "", nil, apperr.Unauthorized()
	}
	id := st.ID
	return st.Content, &id, nil
}

// Get は課題を取得します。
func (s *Service) Get(ctx context.Context, id string) (*learning.Assignment, error) {
	a, err := s.repo.GetAssignment(ctx, id)
	if err != nil {
		if errors.Is(err, learning.ErrNotFound) {
			return nil, apperr.NotFound("Assignment")
		}
		return nil, err
	}
	return a, nil
}

// List は課題一覧を返します。教師は自分の課題を、学習者は公開中の課題を見ます。
func (s *Service) List(ctx context.Context, userID, role string, includeArchived bool) ([]learning.Assignment, error) {
	filter := learning.AssignmentFilter{IncludeArchived: includeArchived}
	if role == learning.RoleTeacher {
		filter.TeacherID = userID
	} else {
		filter.IncludeArchived = false
	}
	return s.repo.ListAssignments(ctx, filter)
}

// owned は課題を取得し、teacherID が作成者であることを確認します。
func (s *Service) owned(ctx context.Context, id, teacherID string) (*learning.Assignment, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.TeacherID != teacherID {
		return nil, apperr.Unauthorized()
	}
	return a, nil
}

// Delete は作成者だけが課題を削除できます。
func (s *Service) Delete(ctx context.Context, id, teacherID string) error {
	if _, err := s.owned(ctx, id, teacherID); err != nil {
		return err
	}
	if err := s.repo.DeleteAssignment(ctx, id); err != nil {
		if errors.Is(err, learning.ErrNotFound) {
			return apperr.NotFound("Assignment")
		}
		return err
	}
	return nil
}

// Submit は解答を採点して保存します。正解は保存済みの課題から取り出します。
func (s *Service) Submit(ctx context.Context, id, studentID string, req SubmitRequest) (*SubmissionResult, error) {
	if err := apperr.Validate(req); err != nil {
		return nil, err
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Archived {
		return nil, apperr.New(apperr.CodeConflict, "Assignment is archived", nil)
	}

	key := scoring.AnswerKey{
		BlankPositions:      a.BlankPositions,
		MatchingDefinitions: a.MatchingDefinitions,
		RequiredWords:       a.RequiredWords,
	}
	raw := req.Answers
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	res, err := scoring.Evaluate(a.AssignmentType, raw, key)
	if err != nil {
		return nil, err
	}

	sub := &learning.Submission{
		AssignmentID:     a.ID,
		StudentID:        studentID,
		Answers:          datatypes.JSON(raw),
		Score:            res.Score,
		MaxScore:         res.MaxScore,
		Feedback:         res.Feedback,
		TimeSpentSeconds: req.TimeSpentSeconds,
	}
	if err := s.repo.CreateSubmission(ctx, sub); err != nil {
		return nil, err
	}
	metrics.IncSubmissionsScored(a.AssignmentType)

	if s.badges != nil {
		if _, err := s.badges.Refresh(ctx, studentID); err != nil {
			s.logger.Warn("Failed to refresh badges", zap.String("user_id", studentID), zap.Error(err))
		}
	}

	return toResult(sub), nil
}

// Submissions は作成者だけが提出一覧を取得できます。
func (s *Service) Submissions(ctx context.Context, id, teacherID string) (*learning.Assignment, []SubmissionResult, error) {
	a, err := s.owned(ctx, id, teacherID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.repo.ListSubmissions(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	out := make([]SubmissionResult, 0, len(rows))
	for i := range rows {
		out = append(out, *toResult(&rows[i]))
	}
	return a, out, nil
}

func toResult(sub *learning.Submission) *SubmissionResult {
	pct := 0
	if sub.MaxScore > 0 {
		pct = int(float64(sub.Score)/float64(sub.MaxScore)*100 + 0.5)
	}
	return &SubmissionResult{
		ID:           sub.ID,
		AssignmentID: sub.AssignmentID,
		StudentID:    sub.StudentID,
		Score:        sub.Score,
		MaxScore:     sub.MaxScore,
		Percentage:   pct,
		Feedback:     sub.Feedback,
		SubmittedAt:  sub.SubmittedAt,
		Passed:       scoring.Passed(sub.Score, sub.MaxScore),
	}
}

// definitionChoices は学習者に見せる定義の選択肢を、正解の並びが分からない順で返します。
func definitionChoices(defs map[string]string) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
