package domain

import "strings"

type QuestionKind string

const (
	QuestionSingle QuestionKind = "single"
	QuestionMulti  QuestionKind = "multi"
)

const mb = 1024 * 1024

// Question - один из фиксированных пунктов заявки, к которому прикладывается документ
type Question struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Required     bool         `json:"required"`
	Kind         QuestionKind `json:"kind"`
	MaxSizeBytes int64        `json:"maxSizeBytes"`
	ContentTypes []string     `json:"contentTypes,omitempty"` // пустой список - любой тип
}

var (
	pdfOnly      = []string{"application/pdf"}
	spreadsheets = []string{
		"application/pdf",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"text/csv",
	}
)

// questions перечислены в порядке отображения в форме
var questions = []Question{
	{ID: "company_registration", Title: "Company registration certificate", Required: true, Kind: QuestionSingle, MaxSizeBytes: 50 * mb, ContentTypes: pdfOnly},
	{ID: "financial_statements", Title: "Audited financial statements", Required: true, Kind: QuestionSingle, MaxSizeBytes: 200 * mb, ContentTypes: spreadsheets},
	{ID: "technical_proposal", Title: "Technical proposal", Required: true, Kind: QuestionSingle, MaxSizeBytes: 500 * mb},
	{ID: "price_schedule", Title: "Price schedule", Required: true, Kind: QuestionSingle, MaxSizeBytes: 50 * mb, ContentTypes: spreadsheets},
	{ID: "references", Title: "Client references", Required: false, Kind: QuestionMulti, MaxSizeBytes: 100 * mb},
	{ID: "supporting_documents", Title: "Supporting documents", Required: false, Kind: QuestionMulti, MaxSizeBytes: 500 * mb},
}

var questionIndex = func() map[string]Question {
	idx := make(map[string]Question, len(questions))
	for _, q := range questions {
		idx[q.ID] = q
	}
	return idx
}()

// Questions возвращает копию каталога вопросов
func Questions() []Question {
	out := make([]Question, len(questions))
	copy(out, questions)
	return out
}

func LookupQuestion(id string) (Question, bool) {
	q, ok := questionIndex[id]
	return q, ok
}

// RequiredQuestionIDs возвращает идентификаторы обязательных вопросов в порядке каталога
func RequiredQuestionIDs() []string {
	var ids []string
	for _, q := range questions {
		if q.Required {
			ids = append(ids, q.ID)
		}
	}
	return ids
}

// AllowsContentType проверяет тип содержимого без учета параметров вроде charset
func (q Question) AllowsContentType(contentType string) bool {
	if len(q.ContentTypes) == 0 {
		return true
	}
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, allowed := range q.ContentTypes {
		if base == allowed {
			return true
		}
	}
	return false
}
