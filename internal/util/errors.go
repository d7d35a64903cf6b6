package util

import "errors"

// 校验类错误在入口同步返回给提交方，绝不重试
var (
	ErrExamNotFound      = errors.New("exam_not_found")
	ErrExamNotOpen       = errors.New("exam_not_open")
	ErrNotEnrolled       = errors.New("not_enrolled")
	ErrWindowNotOpen     = errors.New("window_not_open")
	ErrWindowClosed      = errors.New("window_closed")
	ErrAttemptsExhausted = errors.New("attempts_exhausted")

	ErrInvalidExam        = errors.New("invalid exam definition")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrWindowNeverOpened  = errors.New("submission window never opened")
	ErrDeadLetterNotFound = errors.New("dead letter not found")
)
