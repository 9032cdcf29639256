package learning

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourusername/wordnest/internal/badges"
	"github.com/yourusername/wordnest/internal/blanks"
)

var (
	// ErrNotFound は対象のレコードが存在しないことを表します。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate は一意制約に違反したことを表します。
	ErrDuplicate = errors.New("record already exists")
)

// Store は gorm を使った学習データのリポジトリです。
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore は Store を作成します。
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// NormalizeWord は語彙の保存・照合に使う形へ正規化します。
func NormalizeWord(w string) string {
	return blanks.Normalize(strings.TrimSpace(w))
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

// --- users ---

// CreateUser はユーザーを作成します。
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", u.Username).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicate
	}
	return translate(s.db.WithContext(ctx).Create(u).Error)
}

// GetUser は ID でユーザーを取得します。
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// GetUserByUsername はユーザー名でユーザーを取得します。
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, "username = ?", username).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// --- profiles ---

// GetProfile はプロフィールを取得します。
func (s *Store) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	if err := s.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// EnsureProfile はプロフィールが無ければ既定値で作成し、作成したかどうかを返します。
func (s *Store) EnsureProfile(ctx context.Context, userID, level string, age int) (*Profile, bool, error) {
	p, err := s.GetProfile(ctx, userID)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	p = &Profile{UserID: userID, Level: level, Age: age}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(p).Error
	if err != nil {
		return nil, false, translate(err)
	}
	// 同時に作成された場合は保存済みの値を読み直す
	stored, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

// SetAvatar はアバター画像の保存先を記録します。
func (s *Store) SetAvatar(ctx context.Context, userID, key, contentType string) error {
	res := s.db.WithContext(ctx).Model(&Profile{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"avatar_key": key, "avatar_content_type": contentType})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- vocabulary ---

// FindWords は words のうち保存済みのものを正規化済みの単語をキーに返します。
func (s *Store) FindWords(ctx context.Context, userID string, words []string) (map[string]VocabularyWord, error) {
	normalized := make([]string, 0, len(words))
	for _, w := range words {
		if n := NormalizeWord(w); n != "" {
			normalized = append(normalized, n)
		}
	}
	found := make(map[string]VocabularyWord, len(normalized))
	if len(normalized) == 0 {
		return found, nil
	}
	var rows []VocabularyWord
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND word IN ?", userID, normalized).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		found[r.Word] = r
	}
	return found, nil
}

// ListWords は語彙を新しい順に返します。mastery が空なら全件です。
func (s *Store) ListWords(ctx context.Context, userID, mastery string) ([]VocabularyWord, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if mastery != "" {
		q = q.Where("mastery = ?", mastery)
	}
	var rows []VocabularyWord
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetWord は語彙を取得します。
func (s *Store) GetWord(ctx context.Context, id string) (*VocabularyWord, error) {
	var w VocabularyWord
	if err := s.db.WithContext(ctx).First(&w, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

// UpdateWordMastery は習熟度を更新し、プロフィールの習得語数を数え直します。
func (s *Store) UpdateWordMastery(ctx context.Context, id, mastery string) (*VocabularyWord, error) {
	var updated VocabularyWord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&updated, "id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Model(&updated).Update("mastery", mastery).Error; err != nil {
			return err
		}
		updated.Mastery = mastery
		return recountMastered(tx, updated.UserID)
	})
	if err != nil {
		return nil, translate(err)
	}
	return &updated, nil
}

func recountMastered(tx *gorm.DB, userID string) error {
	var count int64
	if err := tx.Model(&VocabularyWord{}).
		Where("user_id = ? AND mastery = ?", userID, MasteryKnown).
		Count(&count).Error; err != nil {
		return err
	}
	return tx.Model(&Profile{}).Where("user_id = ?", userID).Update("words_mastered", count).Error
}

// --- stories ---

// SaveGeneratedStory はストーリーと新出語を 1 トランザクションで保存し、
// プロフィールの読了数と習得語数を更新します。
// 既に保存済みの単語（同時に走った別の生成が先に保存した分を含む）は無視し、
// 実際に作成した行だけを返します。
func (s *Store) SaveGeneratedStory(ctx context.Context, story *Story, newWords []VocabularyWord) ([]VocabularyWord, error) {
	if story.ID == "" {
		story.ID = uuid.NewString()
	}
	created := make([]VocabularyWord, 0, len(newWords))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(story).Error; err != nil {
			return err
		}
		for _, w := range newWords {
			if w.ID == "" {
				w.ID = uuid.NewString()
			}
			w.UserID = story.UserID
			w.StoryID = &story.ID
			if w.Mastery == "" {
				w.Mastery = MasteryUnknown
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&w)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				created = append(created, w)
			}
		}
		if err := tx.Model(&Profile{}).
			Where("user_id = ?", story.UserID).
			Update("stories_read", gorm.Expr("stories_read + ?", 1)).Error; err != nil {
			return err
		}
		return recountMastered(tx, story.UserID)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetStory はストーリーを取得します。
func (s *Store) GetStory(ctx context.Context, id string) (*Story, error) {
	var st Story
	if err := s.db.WithContext(ctx).First(&st, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &st, nil
}

// ListStories はユーザーのストーリーを新しい順に最大 limit 件返します。
func (s *Store) ListStories(ctx context.Context, userID string, limit int) ([]Story, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []Story
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// --- assignments ---

// AssignmentFilter は課題一覧の絞り込み条件です。
type AssignmentFilter struct {
	TeacherID       string
	IncludeArchived bool
}

// CreateAssignment は課題を作成します。
func (s *Store) CreateAssignment(ctx context.Context, a *Assignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return translate(s.db.WithContext(ctx).Create(a).Error)
}

// GetAssignment は課題を取得します。
func (s *Store) GetAssignment(ctx context.Context, id string) (*Assignment, error) {
	var a Assignment
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

// ListAssignments は課題を新しい順に返します。
func (s *Store) ListAssignments(ctx context.Context, filter AssignmentFilter) ([]Assignment, error) {
	q := s.db.WithContext(ctx).Model(&Assignment{})
	if filter.TeacherID != "" {
		q = q.Where("teacher_id = ?", filter.TeacherID)
	}
	if !filter.IncludeArchived {
		q = q.Where("archived = ?", false)
	}
	var rows []Assignment
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteAssignment は課題とその提出をまとめて削除します。
func (s *Store) DeleteAssignment(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("assignment_id = ?", id).Delete(&Submission{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Assignment{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ArchiveExpired は期限が before より前の課題をアーカイブし、件数を返します。
func (s *Store) ArchiveExpired(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Assignment{}).
		Where("archived = ? AND due_date IS NOT NULL AND due_date < ?", false, before).
		Update("archived", true)
	return res.RowsAffected, res.Error
}

// --- submissions ---

// CreateSubmission は提出を保存します。
func (s *Store) CreateSubmission(ctx context.Context, sub *Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = s.now().UTC()
	}
	return translate(s.db.WithContext(ctx).Create(sub).Error)
}

// ListSubmissions は課題の提出を提出順に返します。
func (s *Store) ListSubmissions(ctx context.Context, assignmentID string) ([]Submission, error) {
	var rows []Submission
	if err := s.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("submitted_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// --- badges ---

// BadgeStats はバッジ判定用の集計値を返します。
func (s *Store) BadgeStats(ctx context.Context, userID string) (badges.Stats, error) {
	var stats badges.Stats
	db := s.db.WithContext(ctx)

	var p Profile
	err := db.First(&p, "user_id = ?", userID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return stats, err
	}
	stats.Stories = p.StoriesRead
	stats.Mastered = p.WordsMastered

	var words int64
	if err := db.Model(&VocabularyWord{}).Where("user_id = ?", userID).Count(&words).Error; err != nil {
		return stats, err
	}
	stats.Words = int(words)

	var perfect int64
	if err := db.Model(&Submission{}).
		Where("student_id = ? AND max_score > 0 AND score >= max_score", userID).
		Count(&perfect).Error; err != nil {
		return stats, err
	}
	stats.PerfectSubmissions = int(perfect)
	return stats, nil
}

// UnlockBadges は未解除のバッジを記録し、新たに解除した ID を返します。
func (s *Store) UnlockBadges(ctx context.Context, userID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var existing []UserBadge
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&existing).Error; err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(existing))
	for _, b := range existing {
		have[b.BadgeID] = struct{}{}
	}

	var unlocked []string
	now := s.now().UTC()
	for _, id := range ids {
		if _, ok := have[id]; ok {
			continue
		}
		row := UserBadge{ID: uuid.NewString(), UserID: userID, BadgeID: id, UnlockedAt: now}
		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return unlocked, res.Error
		}
		if res.RowsAffected > 0 {
			unlocked = append(unlocked, id)
		}
	}
	return unlocked, nil
}

// ListBadges は解除済みのバッジを解除順に返します。
func (s *Store) ListBadges(ctx context.Context, userID string) ([]UserBadge, error) {
	var rows []UserBadge
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("unlocked_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
