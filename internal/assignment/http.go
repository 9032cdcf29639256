package assignment

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/wordnest/internal/apperr"
	"github.com/yourusername/wordnest/internal/auth"
	"github.com/yourusername/wordnest/internal/learning"
	"github.com/yourusername/wordnest/internal/scoring"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// RoleGuard は役割ごとのアクセス制御ミドルウェアを提供します。
type RoleGuard interface {
	RequireRole(role string) gin.HandlerFunc
}

// Register はルートを登録します。
func Register(rg *gin.RouterGroup, svc *Service, guard RoleGuard) {
	teacher := guard.RequireRole(learning.RoleTeacher)
	student := guard.RequireRole(learning.RoleStudent)

	rg.POST("/assignments", teacher, CreateHandler(svc))
	rg.GET("/assignments", ListHandler(svc))
	rg.GET("/assignments/:id", GetHandler(svc))
	rg.DELETE("/assignments/:id", teacher, DeleteHandler(svc))
	rg.POST("/assignments/:id/submissions", student, SubmitHandler(svc))
	rg.GET("/assignments/:id/submissions", teacher, SubmissionsHandler(svc))
	rg.GET("/assignments/:id/submissions/export", teacher, ExportHandler(svc))
}

// CreateHandler は POST /api/assignments のハンドラーを返します。
func CreateHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, apperr.Validation("課題の内容を JSON で送ってください"))
			return
		}
		a, err := svc.Create(c.Request.Context(), auth.UserID(c), req)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, view(a, true))
	}
}

// ListHandler は GET /api/assignments のハンドラーを返します。
func ListHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		includeArchived := c.Query("includeArchived") == "true"
		rows, err := svc.List(c.Request.Context(), auth.UserID(c), auth.Role(c), includeArchived)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		userID := auth.UserID(c)
		out := make([]gin.H, 0, len(rows))
		for i := range rows {
			out = append(out, view(&rows[i], rows[i].TeacherID == userID))
		}
		c.JSON(http.StatusOK, gin.H{"assignments": out})
	}
}

// GetHandler は GET /api/assignments/:id のハンドラーを返します。正解は作成者にだけ返します。
func GetHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, view(a, a.TeacherID == auth.UserID(c)))
	}
}

// DeleteHandler は DELETE /api/assignments/:id のハンドラーを返します。
func DeleteHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("id"), auth.UserID(c)); err != nil {
			apperr.Respond(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// SubmitHandler は POST /api/assignments/:id/submissions のハンドラーを返します。
func SubmitHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, apperr.Validation("answers を JSON で送ってください"))
			return
		}
		res, err := svc.Submit(c.Request.Context(), c.Param("id"), auth.UserID(c), req)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, res)
	}
}

// SubmissionsHandler は GET /api/assignments/:id/submissions のハンドラーを返します。
func SubmissionsHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, rows, err := svc.Submissions(c.Request.Context(), c.Param("id"), auth.UserID(c))
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"submissions": rows})
	}
}

// ExportHandler は提出一覧を XLSX で返します。
func ExportHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, data, err := svc.Export(c.Request.Context(), c.Param("id"), auth.UserID(c))
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		filename := fmt.Sprintf("submissions-%s.xlsx", a.ID)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", filename, url.PathEscape(filename)))
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, xlsxContentType, data)
	}
}

// view は課題の応答を作ります。withKey が false の場合は正解を含めません。
func view(a *learning.Assignment, withKey bool) gin.H {
	out := gin.H{
		"id":             a.ID,
		"teacherId":      a.TeacherID,
		"title":          a.Title,
		"instructions":   a.Instructions,
		"assignmentType": a.AssignmentType,
		"archived":       a.Archived,
		"createdAt":      a.CreatedAt,
	}
	if a.StoryID != nil {
		out["storyId"] = *a.StoryID
	}
	if a.DueDate != nil {
		out["dueDate"] = a.DueDate
	}
	switch a.AssignmentType {
	case scoring.TypeFillBlanks:
		out["blankedText"] = a.BlankedText
		out["blankCount"] = len(a.BlankPositions)
		if withKey {
			out["blankPositions"] = a.BlankPositions
		}
	case scoring.TypeWordMatching:
		out["matchingWords"] = a.MatchingWords
		out["definitions"] = definitionChoices(a.MatchingDefinitions)
		if withKey {
			out["matchingDefinitions"] = a.MatchingDefinitions
		}
	case scoring.TypeCustomWords:
		out["requiredWords"] = a.RequiredWords
	}
	return out
}
