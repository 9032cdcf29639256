// Package learning は学習データ（ユーザー・語彙・ストーリー・課題・提出）の永続化を提供します。
package learning

import (
	"time"

	"gorm.io/datatypes"

	"github.com/yourusername/wordnest/internal/blanks"
)

// ユーザーの役割
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

// 語彙の習熟度
const (
	MasteryKnown    = "known"
	MasteryLearning = "learning"
	MasteryUnknown  = "unknown"
)

// ValidMastery は習熟度の値が有効かを返します。
func ValidMastery(m string) bool {
	switch m {
	case MasteryKnown, MasteryLearning, MasteryUnknown:
		return true
	default:
		return false
	}
}

// User はログイン可能なアカウントです。
type User struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:64;not null" json:"username"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         string    `gorm:"size:16;not null" json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Profile は学習者ごとの集計値と設定です。
type Profile struct {
	UserID            string    `gorm:"primaryKey;size:36" json:"userId"`
	Level             string    `gorm:"size:16" json:"level"`
	Age               int       `json:"age,omitempty"`
	WordsMastered     int       `json:"wordsMastered"`
	StoriesRead       int       `json:"storiesRead"`
	AvatarKey         string    `gorm:"size:255" json:"-"`
	AvatarContentType string    `gorm:"size:64" json:"-"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// VocabularyWord は学習者が集めた単語です。Word は小文字に正規化して保存します。
type VocabularyWord struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserID     string    `gorm:"uniqueIndex:idx_user_word;size:36;not null" json:"userId"`
	Word       string    `gorm:"uniqueIndex:idx_user_word;size:128;not null" json:"word"`
	Definition string    `gorm:"type:text" json:"definition,omitempty"`
	Example    string    `gorm:"type:text" json:"example,omitempty"`
	Mastery    string    `gorm:"index;size:16;not null" json:"mastery"`
	StoryID    *string   `gorm:"size:36" json:"storyId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Story は生成されたストーリーです。
type Story struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	UserID       string    `gorm:"index;size:36;not null" json:"userId"`
	Title        string    `gorm:"size:255" json:"title"`
	Content      string    `gorm:"type:text" json:"content"`
	Level        string    `gorm:"size:16" json:"level"`
	Mode         string    `gorm:"size:16" json:"mode"`
	Topic        string    `gorm:"size:255" json:"topic,omitempty"`
	UnknownWords []string  `gorm:"serializer:json;type:text" json:"unknownWords"`
	Fallback     bool      `json:"fallback"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Assignment は教師が作成する課題です。
type Assignment struct {
	ID                  string            `gorm:"primaryKey;size:36" json:"id"`
	TeacherID           string            `gorm:"index;size:36;not null" json:"teacherId"`
	Title               string            `gorm:"size:255;not null" json:"title"`
	Instructions        string            `gorm:"type:text" json:"instructions,omitempty"`
	AssignmentType      string            `gorm:"size:32;not null" json:"assignmentType"`
	StoryID             *string           `gorm:"size:36" json:"storyId,omitempty"`
	BlankedText         string            `gorm:"type:text" json:"blankedText,omitempty"`
	RequiredWords       []string          `gorm:"serializer:json;type:text" json:"requiredWords,omitempty"`
	MatchingWords       []string          `gorm:"serializer:json;type:text" json:"matchingWords,omitempty"`
	MatchingDefinitions map[string]string `gorm:"serializer:json;type:text" json:"-"`
	BlankPositions      []blanks.Position `gorm:"serializer:json;type:text" json:"-"`
	DueDate             *time.Time        `gorm:"index" json:"dueDate,omitempty"`
	Archived            bool              `gorm:"index" json:"archived"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// Submission は課題への提出と採点結果です。
type Submission struct {
	ID               string         `gorm:"primaryKey;size:36" json:"id"`
	AssignmentID     string         `gorm:"index;size:36;not null" json:"assignmentId"`
	StudentID        string         `gorm:"index;size:36;not null" json:"studentId"`
	Answers          datatypes.JSON `json:"answers"`
	Score            int            `json:"score"`
	MaxScore         int            `json:"maxScore"`
	Feedback         string         `gorm:"type:text" json:"feedback"`
	TimeSpentSeconds int            `json:"timeSpentSeconds,omitempty"`
	SubmittedAt      time.Time      `json:"submittedAt"`
}

// UserBadge は解除済みのバッジです。
type UserBadge struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserID     string    `gorm:"uniqueIndex:idx_user_badge;size:36;not null" json:"userId"`
	BadgeID    string    `gorm:"uniqueIndex:idx_user_badge;size:64;not null" json:"badgeId"`
	UnlockedAt time.Time `json:"unlockedAt"`
}

func allModels() []any {
	return []any{
		&User{},
		&Profile{},
		&VocabularyWord{},
		&Story{},
		&Assignment{},
		&Submission{},
		&UserBadge{},
	}
}
