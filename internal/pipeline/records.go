package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rendis/stickyflow/pkg/schema"
)

// DecodeRecords reads compiler input. A document whose first non-blank
// byte is '[' is a JSON array of records; anything else is plain text in
// which blank-line separated blocks become records n1, n2, ... and a
// "# name" first line sets the record name. Records without an ID get
// their position-based ID.
func DecodeRecords(data []byte) ([]schema.Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] != '[' {
		return TextRecords(string(data)), nil
	}

	var records []schema.Record
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&records); err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "records must be a JSON array of {id, name, text}").WithCause(err)
	}
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = recordID(i)
		}
	}
	return records, nil
}

// ReadRecords is DecodeRecords over a reader.
func ReadRecords(r io.Reader) ([]schema.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "failed to read records").WithCause(err)
	}
	return DecodeRecords(data)
}

// TextRecords splits plain text into records.
func TextRecords(text string) []schema.Record {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		records []schema.Record
		block   []string
	)
	flush := func() {
		if len(block) == 0 {
			return
		}
		rec := schema.Record{ID: recordID(len(records))}
		if name, ok := strings.CutPrefix(strings.TrimSpace(block[0]), "#"); ok {
			rec.Name = strings.TrimSpace(name)
			block = block[1:]
		}
		rec.Text = strings.Join(block, "\n")
		records = append(records, rec)
		block = nil
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	flush()
	return records
}

func recordID(i int) string {
	return fmt.Sprintf("n%d", i+1)
}
