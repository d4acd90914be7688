// Package file reads activity records and permission sets from local files.
package file

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/policydoc"
)

// maxLineSize bounds a single JSON Lines record.
const maxLineSize = 1 << 20

var validate = validator.New()

// LoadActivity reads a JSON Lines file of activity records. Lines that fail
// to decode or validate are skipped and returned as MALFORMED_RECORD
// diagnostics. Only I/O failures are returned as errors.
func LoadActivity(path string) ([]models.ActivityRecord, []models.Diagnostic, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open activity file: %w", err)
	}
	defer f.Close()
	return ReadActivity(f, path)
}

// ReadActivity is LoadActivity over an arbitrary reader. source labels
// diagnostics.
func ReadActivity(r io.Reader, source string) ([]models.ActivityRecord, []models.Diagnostic, error) {
	var (
		records []models.ActivityRecord
		diags   []models.Diagnostic
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec models.ActivityRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			diags = append(diags, malformed(source, line, err))
			continue
		}
		if err := validate.Struct(rec); err != nil {
			diags = append(diags, malformed(source, line, err))
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", source, err)
	}
	return records, diags, nil
}

func malformed(source string, line int, err error) models.Diagnostic {
	return models.Diagnostic{
		Kind:    models.DiagnosticMalformedRecord,
		Source:  fmt.Sprintf("%s:%d", source, line),
		Message: fmt.Sprintf("%v: %v", models.ErrMalformedRecord, err),
	}
}

// LoadPolicies reads a JSON object mapping each principal to one policy
// document or an array of documents. A document that cannot be normalized is
// skipped with a SKIPPED_POLICY diagnostic; the principal keeps the
// statements of its other documents.
func LoadPolicies(path string) (map[string]models.PermissionSet, []models.Diagnostic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicies(data, path)
}

// ParsePolicies is LoadPolicies over in-memory data.
func ParsePolicies(data []byte, source string) (map[string]models.PermissionSet, []models.Diagnostic, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", source, err)
	}

	principals := make([]string, 0, len(raw))
	for p := range raw {
		principals = append(principals, p)
	}
	sort.Strings(principals)

	out := make(map[string]models.PermissionSet, len(raw))
	var diags []models.Diagnostic
	for _, p := range principals {
		docs, err := documents(raw[p])
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s: principal %q: %w", source, p, err)
		}
		set := models.PermissionSet{}
		for i, doc := range docs {
			stmts, err := policydoc.Parse(doc)
			if err != nil {
				diags = append(diags, models.Diagnostic{
					Kind:    models.DiagnosticSkippedPolicy,
					Source:  fmt.Sprintf("%s:%s[%d]", source, p, i),
					Message: err.Error(),
				})
				continue
			}
			set = append(set, stmts...)
		}
		out[p] = set
	}
	return out, diags, nil
}

func documents(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var docs []json.RawMessage
		if err := json.Unmarshal(raw, &docs); err != nil {
			return nil, err
		}
		return docs, nil
	}
	return []json.RawMessage{raw}, nil
}
