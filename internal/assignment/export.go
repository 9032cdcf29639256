package assignment

import (
	"bytes"
	"context"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/yourusername/wordnest/internal/learning"
)

const exportSheet = "Submissions"

var exportHeaders = []string{"Student", "Score", "Max Score", "Percentage", "Passed", "Time Spent (s)", "Submitted At", "Feedback"}

// Export は提出一覧を XLSX にして返します。作成者だけが取得できます。
func (s *Service) Export(ctx context.Context, id, teacherID string) (*learning.Assignment, []byte, error) {
	a, err := s.owned(ctx, id, teacherID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.repo.ListSubmissions(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetIndex, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, nil, err
	}
	f.SetActiveSheet(sheetIndex)
	_ = f.DeleteSheet("Sheet1")

	if err := f.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		return nil, nil, err
	}

	names := make(map[string]string)
	for i := range rows {
		r := toResult(&rows[i])
		name, ok := names[r.StudentID]
		if !ok {
			name = s.studentName(ctx, r.StudentID)
			names[r.StudentID] = name
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, nil, err
		}
		row := []any{
			name,
			r.Score,
			r.MaxScore,
			r.Percentage,
			r.Passed,
			rows[i].TimeSpentSeconds,
			r.SubmittedAt.UTC().Format("2006-01-02 15:04:05"),
			r.Feedback,
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, nil, err
	}
	return a, buf.Bytes(), nil
}

// studentName は表示用のユーザー名を返します。見つからない場合は ID を使います。
func (s *Service) studentName(ctx context.Context, id string) string {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		s.logger.Debug("Student lookup failed", zap.String("user_id", id), zap.Error(err))
		return id
	}
	return u.Username
}
