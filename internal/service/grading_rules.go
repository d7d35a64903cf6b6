package service

import (
	"encoding/json"
	"sort"
	"strings"

	"exam_center_backend/internal/model"
	"exam_center_backend/internal/util"
)

// 评分是 (答案, 键) 的纯函数：相同输入永远得到相同结果。
// 主观题不做自动给分，置 needs_review 由人工复核。

// QuestionVerdict 单题判定
type QuestionVerdict struct {
	Score       float64
	NeedsReview bool
}

// 判断题的真值归一化 token 集合
var truthyTokens = map[string]bool{
	"true": true, "1": true, "yes": true, "t": true,
	"是": true, "对": true, "正确": true,
}

var falsyTokens = map[string]bool{
	"false": true, "0": true, "no": true, "f": true,
	"否": true, "错": true, "错误": true,
}

// ScoreQuestion 按题型评分。rawAnswer 是答卷里该题的原始JSON值
// （字符串或字符串数组），key 是题库解析出的标准答案。
func ScoreQuestion(questionType string, rawAnswer json.RawMessage, key model.AnswerKeyQuestion) QuestionVerdict {
	switch questionType {
	case util.QuestionSingleChoice:
		student := normalizeText(decodeAnswerText(rawAnswer))
		if student != "" && student == normalizeText(key.CorrectAnswer) {
			return QuestionVerdict{Score: key.MaxScore}
		}
		return QuestionVerdict{}

	case util.QuestionMultipleChoice:
		student := normalizeOptionSet(decodeAnswerOptions(rawAnswer))
		correct := normalizeOptionSet(splitOptions(key.CorrectAnswer))
		// 多选题要求选项集合完全一致，不给部分分
		if len(student) > 0 && optionSetsEqual(student, correct) {
			return QuestionVerdict{Score: key.MaxScore}
		}
		return QuestionVerdict{}

	case util.QuestionTrueFalse:
		studentBool, studentOK := parseTruthToken(decodeAnswerText(rawAnswer))
		correctBool, correctOK := parseTruthToken(key.CorrectAnswer)
		if studentOK && correctOK && studentBool == correctBool {
			return QuestionVerdict{Score: key.MaxScore}
		}
		return QuestionVerdict{}

	case util.QuestionFillBlank:
		student := normalizeText(decodeAnswerText(rawAnswer))
		if student != "" && student == normalizeText(key.CorrectAnswer) {
			return QuestionVerdict{Score: key.MaxScore}
		}
		return QuestionVerdict{}

	case util.QuestionEssay, util.QuestionShortAnswer:
		// 主观题不自动给分：零分 + 复核标记，等人工阅卷
		return QuestionVerdict{NeedsReview: true}

	default:
		// 未知题型同样交给人工
		return QuestionVerdict{NeedsReview: true}
	}
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// decodeAnswerText 把原始JSON答案还原为文本：优先按字符串解析，
// 其次把数组按逗号拼接（兼容把单选按数组提交的客户端），最后退回原文
func decodeAnswerText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, ",")
	}
	return string(raw)
}

// decodeAnswerOptions 把多选答案还原为选项列表，兼容 "A,B" 和 ["A","B"] 两种形式
func decodeAnswerOptions(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return splitOptions(s)
	}
	return splitOptions(string(raw))
}

func splitOptions(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '，' || r == '；'
	})
	return parts
}

func normalizeOptionSet(options []string) []string {
	set := make(map[string]bool, len(options))
	for _, o := range options {
		n := normalizeText(o)
		if n != "" {
			set[n] = true
		}
	}
	out := make([]string, 0, len(set))
	for o := range set {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

func optionSetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func parseTruthToken(s string) (value bool, ok bool) {
	n := normalizeText(s)
	if truthyTokens[n] {
		return true, true
	}
	if falsyTokens[n] {
		return false, true
	}
	return false, false
}
