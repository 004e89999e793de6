package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// QuestionRecord is one entry of the scraped corpus. Fields the tool does not
// use are kept in extra, and keys remembers the input key order, so a
// load/save round trip reproduces the record.
type QuestionRecord struct {
	Name         string
	Tags         []string
	Difficulty   string
	QuestionText string

	extra map[string]json.RawMessage
	keys  []string
}

// CategorizedQuestion is a QuestionRecord with the labels the pipeline assigned.
type CategorizedQuestion struct {
	QuestionRecord
	AssignedLabels []string
}

const (
	fieldName         = "name"
	fieldTags         = "tags"
	fieldDifficulty   = "difficulty"
	fieldQuestionText = "questionText"
	// Key read by the database upload scripts.
	fieldAssignedLabels = "aiCategories"
)

func (q *QuestionRecord) UnmarshalJSON(data []byte) error {
	raw, keys, err := decodeObject(data)
	if err != nil {
		return err
	}
	*q = QuestionRecord{keys: keys}
	if err := decodeField(raw, fieldName, &q.Name); err != nil {
		return err
	}
	if err := decodeField(raw, fieldTags, &q.Tags); err != nil {
		return err
	}
	if err := decodeField(raw, fieldDifficulty, &q.Difficulty); err != nil {
		return err
	}
	if err := decodeField(raw, fieldQuestionText, &q.QuestionText); err != nil {
		return err
	}
	delete(raw, fieldName)
	delete(raw, fieldTags)
	delete(raw, fieldDifficulty)
	delete(raw, fieldQuestionText)
	if len(raw) > 0 {
		q.extra = raw
	}
	return nil
}

// decodeObject reads a JSON object into raw values plus its keys in input
// order. A repeated key keeps its first position and its last value.
func decodeObject(data []byte) (map[string]json.RawMessage, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if tok == nil {
		return nil, nil, fmt.Errorf("question record is null")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("question record must be a JSON object")
	}

	raw := make(map[string]json.RawMessage)
	keys := []string{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected token %v in question record", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", key, err)
		}
		if _, seen := raw[key]; !seen {
			keys = append(keys, key)
		}
		raw[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return raw, keys, nil
}

func (q QuestionRecord) MarshalJSON() ([]byte, error) {
	return q.marshalWith(nil)
}

func (c *CategorizedQuestion) UnmarshalJSON(data []byte) error {
	if err := c.QuestionRecord.UnmarshalJSON(data); err != nil {
		return err
	}
	c.AssignedLabels = []string{}
	if raw, ok := c.extra[fieldAssignedLabels]; ok {
		if err := json.Unmarshal(raw, &c.AssignedLabels); err != nil {
			return fmt.Errorf("decode %s: %w", fieldAssignedLabels, err)
		}
		if c.AssignedLabels == nil {
			c.AssignedLabels = []string{}
		}
		delete(c.extra, fieldAssignedLabels)
	}
	return nil
}

func (c CategorizedQuestion) MarshalJSON() ([]byte, error) {
	labels := c.AssignedLabels
	if labels == nil {
		labels = []string{}
	}
	return c.QuestionRecord.marshalWith(labels)
}

// Categorize returns the record with labels attached. The label slice is copied.
func (q QuestionRecord) Categorize(labels []string) CategorizedQuestion {
	out := make([]string, len(labels))
	copy(out, labels)
	return CategorizedQuestion{QuestionRecord: q, AssignedLabels: out}
}

// marshalWith writes the keys in the order they were read. Records built in
// code get the known fields first, then any preserved fields sorted. When
// labels is non-nil they replace aiCategories in place, or are appended.
func (q QuestionRecord) marshalWith(labels []string) ([]byte, error) {
	tags := q.Tags
	if tags == nil {
		tags = []string{}
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, v any) error {
		encoded, err := encodeNoEscape(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := encodeNoEscape(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(encoded)
		return nil
	}

	keys := q.keys
	if keys == nil {
		keys = []string{fieldName, fieldTags, fieldDifficulty, fieldQuestionText}
		extra := make([]string, 0, len(q.extra))
		for k := range q.extra {
			extra = append(extra, k)
		}
		sort.Strings(extra)
		keys = append(keys, extra...)
	}

	labelsWritten := false
	for _, k := range keys {
		var v any
		switch k {
		case fieldName:
			v = q.Name
		case fieldTags:
			v = tags
		case fieldDifficulty:
			v = q.Difficulty
		case fieldQuestionText:
			v = q.QuestionText
		case fieldAssignedLabels:
			if labels != nil {
				v = labels
				labelsWritten = true
				break
			}
			fallthrough
		default:
			raw, ok := q.extra[k]
			if !ok {
				continue
			}
			v = raw
		}
		if err := write(k, v); err != nil {
			return nil, err
		}
	}

	if labels != nil && !labelsWritten {
		if err := write(fieldAssignedLabels, labels); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func decodeField(raw map[string]json.RawMessage, key string, dst any) error {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func encodeNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
