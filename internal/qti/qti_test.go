package qti

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

const choiceItem = `<?xml version="1.0" encoding="UTF-8"?>
<assessmentItem xmlns="http://www.imsglobal.org/xsd/imsqti_v2p1" identifier="gravity-1" title="Gravity">
  <responseDeclaration identifier="RESPONSE" cardinality="single" baseType="identifier">
    <correctResponse><value>B</value></correctResponse>
  </responseDeclaration>
  <outcomeDeclaration identifier="MAXSCORE" baseType="float">
    <defaultValue><value>4</value></defaultValue>
  </outcomeDeclaration>
  <itemBody>
    <p>What is the <b>SI unit</b> of force?</p>
    <choiceInteraction responseIdentifier="RESPONSE" maxChoices="1">
      <simpleChoice identifier="A">Joule</simpleChoice>
      <simpleChoice identifier="B">Newton</simpleChoice>
      <simpleChoice identifier="C">Watt &amp; hour</simpleChoice>
    </choiceInteraction>
  </itemBody>
</assessmentItem>`

func TestParseChoiceItem(t *testing.T) {
	it, err := ParseItem([]byte(choiceItem))
	require.NoError(t, err)
	assert.Equal(t, "gravity-1", it.ID)
	assert.Equal(t, "What is the SI unit of force?", it.Prompt)
	assert.Equal(t, 4.0, it.MaxScore)
	require.Len(t, it.Choices, 3)
	assert.Equal(t, "Watt & hour", it.Choices[2].Label)

	q, err := it.Question(exam.Hard)
	require.NoError(t, err)
	assert.Equal(t, []string{"Joule", "Newton", "Watt & hour"}, q.Options)
	assert.Equal(t, 1, q.CorrectOption)
	assert.Equal(t, 4.0, q.Marks)
	assert.Equal(t, exam.Hard, q.Difficulty)
	assert.Equal(t, []string{"qti:gravity-1"}, q.Tags)
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		name        string
		doc         string
		unsupported bool
		msg         string
	}{
		{
			name: "text entry",
			doc: `<assessmentItem identifier="t1"><itemBody>
				<textEntryInteraction responseIdentifier="RESPONSE"/></itemBody></assessmentItem>`,
			unsupported: true,
			msg:         "text entry",
		},
		{
			name: "multiple cardinality",
			doc: `<assessmentItem identifier="m1">
				<responseDeclaration identifier="RESPONSE" cardinality="multiple">
				<correctResponse><value>A</value><value>B</value></correctResponse></responseDeclaration>
				<itemBody><choiceInteraction><simpleChoice identifier="A">a</simpleChoice>
				<simpleChoice identifier="B">b</simpleChoice></choiceInteraction></itemBody></assessmentItem>`,
			unsupported: true,
			msg:         "multiple cardinality",
		},
		{
			name: "no correct response",
			doc: `<assessmentItem identifier="n1"><responseDeclaration identifier="RESPONSE" cardinality="single"/>
				<itemBody><choiceInteraction><simpleChoice identifier="A">a</simpleChoice></choiceInteraction></itemBody></assessmentItem>`,
			msg: "exactly one correct response",
		},
		{
			name: "bad max score",
			doc: `<assessmentItem identifier="s1">
				<responseDeclaration identifier="RESPONSE" cardinality="single"><correctResponse><value>A</value></correctResponse></responseDeclaration>
				<outcomeDeclaration identifier="MAXSCORE" baseType="float"><defaultValue><value>lots</value></defaultValue></outcomeDeclaration>
				<itemBody><choiceInteraction><simpleChoice identifier="A">a</simpleChoice></choiceInteraction></itemBody></assessmentItem>`,
			msg: "invalid MAXSCORE",
		},
		{
			name: "not xml",
			doc:  "question: 1",
			msg:  "decode assessment item",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseItem([]byte(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
			assert.Equal(t, tc.unsupported, errors.Is(err, ErrUnsupported))
		})
	}
}

func TestQuestionNeedsMatchingChoice(t *testing.T) {
	it := Item{ID: "x", Prompt: "p", Correct: "Z", MaxScore: 1, Choices: []Choice{{ID: "A", Label: "a"}, {ID: "B", Label: "b"}}}
	_, err := it.Question(exam.Easy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Z" is not a choice`)
}

func TestPackageRoundTrip(t *testing.T) {
	qs := []exam.Question{
		{
			Meta:          exam.Meta{ID: "1f0c"},
			Text:          "Which is a vector?",
			Options:       []string{"Mass", "Velocity", "Time"},
			CorrectOption: 1,
			Explanation:   "Velocity has direction.",
			Marks:         2,
		},
		{
			Meta:          exam.Meta{ID: "2a9d"},
			Text:          "F = m < a?",
			Options:       []string{"yes", "no"},
			CorrectOption: 0,
			Marks:         1.5,
		},
	}
	pkg, err := WritePackage("PHY", qs)
	require.NoError(t, err)

	items, err := Decode(pkg)
	require.NoError(t, err)
	require.Len(t, items, 2)

	got, err := items[0].Question(exam.Medium)
	require.NoError(t, err)
	assert.Equal(t, qs[0].Text, got.Text)
	assert.Equal(t, qs[0].Options, got.Options)
	assert.Equal(t, 1, got.CorrectOption)
	assert.Equal(t, 2.0, got.Marks)
	assert.Equal(t, "Velocity has direction.", got.Explanation)
	assert.Equal(t, []string{"qti:Q-1f0c"}, got.Tags)

	got, err = items[1].Question(exam.Medium)
	require.NoError(t, err)
	assert.Equal(t, "F = m < a?", got.Text)
	assert.Equal(t, 1.5, got.Marks)
}

func TestReadPackageErrors(t *testing.T) {
	zipOf := func(files map[string]string) []byte {
		buf := new(bytes.Buffer)
		zw := zip.NewWriter(buf)
		for name, body := range files {
			w, err := zw.Create(name)
			require.NoError(t, err)
			_, err = w.Write([]byte(body))
			require.NoError(t, err)
		}
		require.NoError(t, zw.Close())
		return buf.Bytes()
	}

	_, err := Decode(zipOf(map[string]string{"item.xml": choiceItem}))
	assert.EqualError(t, err, "imsmanifest.xml not found")

	missing := `<manifest><resources><resource identifier="r1" type="imsqti_item_xmlv2p1" href="items/a.xml"/></resources></manifest>`
	_, err = Decode(zipOf(map[string]string{manifestName: missing}))
	assert.EqualError(t, err, "resource r1: items/a.xml not in package")

	other := `<manifest><resources><resource identifier="w" type="webcontent" href="a.html"/></resources></manifest>`
	_, err = Decode(zipOf(map[string]string{manifestName: other, "a.html": "<p/>"}))
	assert.EqualError(t, err, "package has no item resources")

	ok := `<manifest><resources><resource identifier="r1" type="imsqti_item_xmlv2p1" href="items/a.xml"/></resources></manifest>`
	items, err := Decode(zipOf(map[string]string{manifestName: ok, "items/a.xml": choiceItem}))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "B", items[0].Correct)
}
