package domain

// ExtractionStatus is the status code the upstream XML extraction layer
// attaches to every parsed manual section.
type ExtractionStatus string

const (
	StatusSuccess             ExtractionStatus = "MKG_SUCCESS"
	StatusSectionNotAvailable ExtractionStatus = "MKG_SECTION_NOT_AVAILABLE"
	StatusFormatNotSupported  ExtractionStatus = "MKG_FORMAT_NOT_SUPPORTED"
)

// Valid reports whether s is one of the known status codes.
func (s ExtractionStatus) Valid() bool {
	switch s {
	case StatusSuccess, StatusSectionNotAvailable, StatusFormatNotSupported:
		return true
	}
	return false
}

// ResponseCode is the small, user-visible result enumeration of the query path.
type ResponseCode string

const (
	CodeSuccess                   ResponseCode = "SUCCESS"
	CodeDataNotFound              ResponseCode = "DATA_NOT_FOUND"
	CodeSectionNotAvailable       ResponseCode = "SECTION_NOT_AVAILABLE"
	CodeQueryMatchingDataNotFound ResponseCode = "QUERY_MATCHING_DATA_NOT_FOUND"
	CodeInvalidRequest            ResponseCode = "INVALID_REQUEST"
	CodeUnsupportedQuery          ResponseCode = "UNSUPPORTED_QUERY"
	CodeInternalError             ResponseCode = "INTERNAL_ERROR"
)

// cannedMessages maps every non-success code to the message shown to users.
var cannedMessages = map[ResponseCode][2]string{
	CodeDataNotFound:              {"No information was found for this product.", "해당 제품에 대한 정보를 찾을 수 없습니다."},
	CodeSectionNotAvailable:       {"This section is not available in the manual.", "매뉴얼에 해당 항목이 없습니다."},
	CodeQueryMatchingDataNotFound: {"Sorry, I could not find an answer to your question.", "질문에 대한 답변을 찾지 못했습니다."},
	CodeInvalidRequest:            {"The request is invalid. Please rephrase your question.", "잘못된 요청입니다. 질문을 다시 입력해 주세요."},
	CodeUnsupportedQuery:          {"This type of question is not supported yet.", "아직 지원하지 않는 질문 유형입니다."},
	CodeInternalError:             {"Something went wrong. Please try again later.", "일시적인 오류가 발생했습니다. 잠시 후 다시 시도해 주세요."},
}

// Message returns the canned message for code in the given language ("ko"
// selects Korean, anything else English). Success has no message.
func (c ResponseCode) Message(lang string) string {
	m, ok := cannedMessages[c]
	if !ok {
		return ""
	}
	if lang == "ko" {
		return m[1]
	}
	return m[0]
}
