package domain

import (
	"errors"
	"strings"
	"testing"
)

func validQuestion(text string) Question {
	return Question{Text: text, Product: "washer", Model: "WM3500C", Section: "troubleshooting"}
}

func TestValidateQuestion_Valid(t *testing.T) {
	cases := []string{
		"the washer will not drain",
		"탈수가 안돼요",
		"UE",
	}
	for _, text := range cases {
		if err := ValidateQuestion(validQuestion(text)); err != nil {
			t.Errorf("expected valid for %q, got %v", text, err)
		}
	}
}

func TestValidateQuestion_TooShort(t *testing.T) {
	for _, text := range []string{"", "   ", "a"} {
		if !errors.Is(ValidateQuestion(validQuestion(text)), ErrQueryTooShort) {
			t.Errorf("expected ErrQueryTooShort for %q", text)
		}
	}
}

func TestValidateQuestion_HangulCountsRunes(t *testing.T) {
	// one Hangul syllable is three bytes but a single rune
	if !errors.Is(ValidateQuestion(validQuestion("물")), ErrQueryTooShort) {
		t.Error("expected a single syllable to be too short")
	}
	if err := ValidateQuestion(validQuestion("소음")); err != nil {
		t.Errorf("expected two syllables to pass, got %v", err)
	}
}

func TestValidateQuestion_Injection(t *testing.T) {
	cases := []string{
		"MATCH (n) DETACH DELETE n RETURN n",
		"noise; DROP everything",
		"drain ${env.SECRET}",
		`spin {"$gt": 1}`,
	}
	for _, text := range cases {
		if !errors.Is(ValidateQuestion(validQuestion(text)), ErrQueryInjection) {
			t.Errorf("expected ErrQueryInjection for %q", text)
		}
	}
}

func TestValidateQuestion_MissingScope(t *testing.T) {
	q := validQuestion("door will not open")
	q.Product = " "
	err := ValidateQuestion(q)
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "product" {
		t.Errorf("expected product field, got %v", err)
	}

	q = validQuestion("door will not open")
	q.Section = ""
	if err := ValidateQuestion(q); !errors.As(err, &ve) || ve.Field != "section" {
		t.Errorf("expected section field, got %v", err)
	}
}

func TestValidationError_Format(t *testing.T) {
	ve := NewValidationError("text", "x", ErrQueryTooShort)
	msg := ve.Error()
	if !strings.Contains(msg, "query too short") || !strings.Contains(msg, `value="x"`) {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestShapeError(t *testing.T) {
	err := NewShapeError("troubleshooting.data", errors.New("not a list"))
	if !errors.Is(err, ErrManualShape) {
		t.Error("ShapeError should unwrap to ErrManualShape")
	}
	if got := err.Error(); got != "manual shape: troubleshooting.data: not a list" {
		t.Errorf("unexpected message %q", got)
	}
	if got := NewShapeError("part_number", nil).Error(); got != "manual shape: part_number" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestSchemaKeyNotFoundError(t *testing.T) {
	var err error = &SchemaKeyNotFoundError{Key: "hasCause"}
	if !errors.Is(err, ErrSchemaKeyNotFound) {
		t.Error("expected ErrSchemaKeyNotFound")
	}
	if !strings.Contains(err.Error(), `"hasCause"`) {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestExtractionStatus_Valid(t *testing.T) {
	for _, s := range []ExtractionStatus{StatusSuccess, StatusSectionNotAvailable, StatusFormatNotSupported} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if ExtractionStatus("MKG_UNKNOWN").Valid() {
		t.Error("unknown status should not be valid")
	}
}

func TestResponseCode_Message(t *testing.T) {
	if CodeSuccess.Message("en") != "" {
		t.Error("success carries no message")
	}
	codes := []ResponseCode{
		CodeDataNotFound, CodeSectionNotAvailable, CodeQueryMatchingDataNotFound,
		CodeInvalidRequest, CodeUnsupportedQuery, CodeInternalError,
	}
	for _, c := range codes {
		en, ko := c.Message("en"), c.Message("ko")
		if en == "" || ko == "" || en == ko {
			t.Errorf("%s: en=%q ko=%q", c, en, ko)
		}
		if c.Message("fr") != en {
			t.Errorf("%s: unknown language should fall back to English", c)
		}
	}
}

func TestRelationPropAndIdentity(t *testing.T) {
	props := map[string]any{PropPartNumber: "MFL1", PropStepNo: 2}
	r := NewRelation("hasCause", props)
	props[PropPartNumber] = "changed"
	if r.Prop(PropPartNumber) != "MFL1" {
		t.Error("NewRelation should copy its properties")
	}
	if r.Prop(PropStepNo) != "" || r.Prop("missing") != "" {
		t.Error("non-string or missing props should read as empty")
	}
	if !IsIdentityLabel(LabelHasPartNumber) || !IsIdentityLabel(LabelTypeOf) || IsIdentityLabel("hasCause") {
		t.Error("IsIdentityLabel mismatch")
	}
	if NewNode(NodeModel, "WM3500C", nil).Properties != nil {
		t.Error("nil props should stay nil")
	}
}
