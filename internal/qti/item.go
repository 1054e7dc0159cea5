// Package qti reads and writes question items in the IMS QTI 2.1 item format.
// Only single-response choice interactions map onto exam questions.
package qti

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

const namespace = "http://www.imsglobal.org/xsd/imsqti_v2p1"

var ErrUnsupported = errors.New("unsupported item")

type assessmentItem struct {
	XMLName  xml.Name             `xml:"assessmentItem"`
	Xmlns    string               `xml:"xmlns,attr,omitempty"`
	ID       string               `xml:"identifier,attr"`
	Title    string               `xml:"title,attr,omitempty"`
	Response responseDeclaration  `xml:"responseDeclaration"`
	Outcomes []outcomeDeclaration `xml:"outcomeDeclaration"`
	Body     itemBody             `xml:"itemBody"`
	Feedback []modalFeedback      `xml:"modalFeedback,omitempty"`
}

type responseDeclaration struct {
	ID          string   `xml:"identifier,attr"`
	Cardinality string   `xml:"cardinality,attr"`
	BaseType    string   `xml:"baseType,attr,omitempty"`
	Correct     []string `xml:"correctResponse>value"`
}

type outcomeDeclaration struct {
	ID       string   `xml:"identifier,attr"`
	BaseType string   `xml:"baseType,attr"`
	Default  []string `xml:"defaultValue>value"`
}

type itemBody struct {
	Paragraphs []markup           `xml:"p"`
	Choice     *choiceInteraction `xml:"choiceInteraction"`
	TextEntry  *struct{}          `xml:"textEntryInteraction"`
	Extended   *struct{}          `xml:"extendedTextInteraction"`
}

type choiceInteraction struct {
	ResponseID string         `xml:"responseIdentifier,attr"`
	MaxChoices int            `xml:"maxChoices,attr"`
	Prompt     *markup        `xml:"prompt"`
	Choices    []simpleChoice `xml:"simpleChoice"`
}

type simpleChoice struct {
	ID    string `xml:"identifier,attr"`
	Inner string `xml:",innerxml"`
}

type markup struct {
	Inner string `xml:",innerxml"`
}

type modalFeedback struct {
	OutcomeID string `xml:"outcomeIdentifier,attr"`
	ShowHide  string `xml:"showHide,attr"`
	ID        string `xml:"identifier,attr"`
	Inner     string `xml:",innerxml"`
}

// Item is one parsed single-choice item.
type Item struct {
	ID          string
	Title       string
	Prompt      string
	Choices     []Choice
	Correct     string
	MaxScore    float64
	Explanation string
}

type Choice struct {
	ID    string
	Label string
}

// ParseItem decodes one assessmentItem document.
func ParseItem(b []byte) (Item, error) {
	var it assessmentItem
	if err := xml.Unmarshal(b, &it); err != nil {
		return Item{}, errors.Wrap(err, "decode assessment item")
	}
	ci := it.Body.Choice
	if ci == nil {
		kind := "no choice interaction"
		switch {
		case it.Body.TextEntry != nil:
			kind = "a text entry interaction"
		case it.Body.Extended != nil:
			kind = "an extended text interaction"
		}
		return Item{}, errors.Wrapf(ErrUnsupported, "item %s has %s", it.ID, kind)
	}
	if c := it.Response.Cardinality; c != "" && c != "single" {
		return Item{}, errors.Wrapf(ErrUnsupported, "item %s has %s cardinality", it.ID, c)
	}
	if len(it.Response.Correct) != 1 {
		return Item{}, errors.Errorf("item %s must declare exactly one correct response", it.ID)
	}

	out := Item{
		ID:       it.ID,
		Title:    it.Title,
		Correct:  strings.TrimSpace(it.Response.Correct[0]),
		MaxScore: 1,
	}
	if ci.Prompt != nil {
		out.Prompt = text(ci.Prompt.Inner)
	} else {
		parts := make([]string, 0, len(it.Body.Paragraphs))
		for _, p := range it.Body.Paragraphs {
			if s := text(p.Inner); s != "" {
				parts = append(parts, s)
			}
		}
		out.Prompt = strings.Join(parts, "\n")
	}
	for _, c := range ci.Choices {
		out.Choices = append(out.Choices, Choice{ID: c.ID, Label: text(c.Inner)})
	}
	for _, o := range it.Outcomes {
		if o.ID != "MAXSCORE" || len(o.Default) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(o.Default[0]), 64)
		if err != nil || v <= 0 {
			return Item{}, errors.Errorf("item %s has invalid MAXSCORE %q", it.ID, o.Default[0])
		}
		out.MaxScore = v
	}
	for _, f := range it.Feedback {
		if f.ShowHide == "show" {
			out.Explanation = text(f.Inner)
			break
		}
	}
	return out, nil
}

// Question maps the item onto a question of the given difficulty. The source
// identifier is kept as a "qti:" tag.
func (it Item) Question(d exam.Difficulty) (exam.Question, error) {
	q := exam.Question{
		Text:          it.Prompt,
		CorrectOption: -1,
		Explanation:   it.Explanation,
		Difficulty:    d,
		Marks:         it.MaxScore,
		Tags:          []string{"qti:" + it.ID},
	}
	for i, c := range it.Choices {
		q.Options = append(q.Options, c.Label)
		if c.ID == it.Correct {
			q.CorrectOption = i
		}
	}
	if q.CorrectOption < 0 {
		return exam.Question{}, errors.Errorf("item %s: correct response %q is not a choice", it.ID, it.Correct)
	}
	return q, nil
}

// MarshalItem renders q as an assessmentItem document.
func MarshalItem(q exam.Question) ([]byte, error) {
	it := assessmentItem{
		Xmlns: namespace,
		ID:    itemID(q.ID),
		Title: firstLine(q.Text),
		Response: responseDeclaration{
			ID:          "RESPONSE",
			Cardinality: "single",
			BaseType:    "identifier",
			Correct:     []string{choiceID(q.CorrectOption)},
		},
		Outcomes: []outcomeDeclaration{
			{ID: "SCORE", BaseType: "float"},
			{ID: "MAXSCORE", BaseType: "float", Default: []string{strconv.FormatFloat(q.Marks, 'f', -1, 64)}},
		},
		Body: itemBody{Choice: &choiceInteraction{
			ResponseID: "RESPONSE",
			MaxChoices: 1,
			Prompt:     &markup{Inner: escape(q.Text)},
		}},
	}
	for i, o := range q.Options {
		it.Body.Choice.Choices = append(it.Body.Choice.Choices, simpleChoice{ID: choiceID(i), Inner: escape(o)})
	}
	if q.Explanation != "" {
		it.Feedback = []modalFeedback{{OutcomeID: "FEEDBACK", ShowHide: "show", ID: "EXPLANATION", Inner: escape(q.Explanation)}}
	}
	b, err := xml.MarshalIndent(it, "", "  ")
	if err != nil {
		return nil, errors.Wrapf(err, "encode question %s", q.ID)
	}
	return append([]byte(xml.Header), b...), nil
}

// text flattens inner markup to plain text.
func text(inner string) string {
	var sb strings.Builder
	dec := xml.NewDecoder(strings.NewReader("<x>" + inner + "</x>"))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			sb.Write(cd)
		}
	}
	s := strings.TrimSpace(sb.String())
	if s == "" {
		// not well-formed, keep what was given
		s = strings.TrimSpace(html.UnescapeString(inner))
	}
	return strings.Join(strings.Fields(s), " ")
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

func choiceID(i int) string {
	if i >= 0 && i < 26 {
		return string(rune('A' + i))
	}
	return fmt.Sprintf("C%d", i+1)
}

// identifiers must not start with a digit
func itemID(id string) string { return "Q-" + id }

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > 80 {
		s = string(r[:80])
	}
	return s
}
