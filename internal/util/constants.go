package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// 题型标识，与题库约定一致
const (
	QuestionSingleChoice   = "single_choice"
	QuestionMultipleChoice = "multiple_choice"
	QuestionTrueFalse      = "true_false"
	QuestionFillBlank      = "fill_blank"
	QuestionShortAnswer    = "short_answer"
	QuestionEssay          = "essay"
)
