package models

// Article represents one statute article from the pre-embedded legal store.
// The ID is the canonical "법령 조문번호" form, e.g. "형법 제12조".
type Article struct {
	ID        string  `json:"id"`
	LegalCode string  `json:"legal_code"` // e.g. "형법", "형사소송법"
	ArticleNo string  `json:"article_no"` // e.g. "제12조", "제109조의2"
	Text      string  `json:"text"`
	Distance  float64 `json:"distance,omitempty"` // vector similarity distance
}

// SupportedLegalCodes lists the statute collections present in the article
// store; the retrieve filter must be one of these.
var SupportedLegalCodes = []string{
	"형법",
	"형사소송법",
	"폭력행위등처벌에관한법률",
	"부정수표단속법",
	"도로교통법",
	"특정범죄가중처벌등에관한법률",
	"마약류불법거래방지에관한특례법",
	"소송촉진등에관한특례법",
	"벌금미납자의사회봉사집행에관한특례법",
}

// IsSupportedLegalCode reports whether code is a known statute collection.
func IsSupportedLegalCode(code string) bool {
	for _, c := range SupportedLegalCodes {
		if c == code {
			return true
		}
	}
	return false
}
