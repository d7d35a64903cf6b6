package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"exam_center_backend/internal/config"
	"exam_center_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportExamResultsLocal(t *testing.T) {
	p := newTestPipeline(t)
	dir := t.TempDir()

	require.NoError(t, p.results.Upsert(&model.GradedResult{
		SubmissionID: "sub-1", ExamID: "exam-1", StudentID: 42,
		TotalScore: 100, ObtainedScore: 77, GradingTime: time.Now(),
	}))

	svc := &ArchiveService{
		Results:  p.results,
		Provider: &LocalArchiveProvider{Config: &config.StorageConfig{LocalPath: dir}},
	}

	url, err := svc.ExportExamResults(context.Background(), "exam-1")
	require.NoError(t, err)
	assert.Contains(t, url, "/archives/graded_exam-1_")

	files, err := filepath.Glob(filepath.Join(dir, "graded_exam-1_*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)

	var archive struct {
		ExamID string `json:"examId"`
		Count  int    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(data, &archive))
	assert.Equal(t, "exam-1", archive.ExamID)
	assert.Equal(t, 1, archive.Count)
}
