package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Parse decodes a payload produced by ExtractPayload into intents.
//
// A single object is wrapped into a one-element list. An empty object or an
// empty list yields no intents and no error; the caller decides what that
// means. Payloads that fail to decode or to validate return an error wrapping
// ErrMalformedPayload. A CREATE record carrying a SET action is split into a
// CREATE followed by a SET on the same machine. The relative order of records
// is preserved; if a CREATE is present and is not first, ErrCreateNotFirst is
// returned.
func Parse(payload string) ([]Intent, error) {
	records, err := decodeRecords(payload)
	if err != nil {
		return nil, err
	}
	records = splitCreateWithAction(records)

	intents := make([]Intent, 0, len(records))
	for i, r := range records {
		in, err := r.Intent()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		intents = append(intents, in)
	}

	if err := checkCreateFirst(intents); err != nil {
		return nil, err
	}
	return intents, nil
}

// decodeRecords decodes, normalises and schema-validates the payload.
func decodeRecords(payload string) ([]Record, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after JSON value", ErrMalformedPayload)
	}

	var items []any
	switch v := doc.(type) {
	case map[string]any:
		if len(v) == 0 {
			return nil, nil
		}
		items = []any{v}
	case []any:
		items = v
	default:
		return nil, fmt.Errorf("%w: expected an object or an array, got %T", ErrMalformedPayload, doc)
	}

	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			normaliseFields(obj)
		}
	}
	if err := compiledSchema.Validate(items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return records, nil
}

// normaliseFields upper-cases the category and stringifies numeric values
// (models like to emit "version": 2).
func normaliseFields(obj map[string]any) {
	for k, v := range obj {
		switch val := v.(type) {
		case json.Number:
			obj[k] = val.String()
		case string:
			if k == "category" {
				obj[k] = strings.ToUpper(strings.TrimSpace(val))
			}
		}
	}
}

// splitCreateWithAction repairs CREATE records that also carry a SET action.
func splitCreateWithAction(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		action, isSet := ParseAction(r.Action)
		if Category(r.Category) != CategoryCreate || !isSet {
			out = append(out, r)
			continue
		}

		create := r
		create.Action = "pull"

		machine := strings.TrimSpace(r.Subject)
		if machine == "" {
			machine = DefaultMachineName(r.Manifest, r.Version)
			create.Subject = machine
		}
		set := Record{
			Category:    string(CategorySet),
			Action:      string(action),
			Target:      machine,
			Description: fmt.Sprintf("%s the virtual machine %s", action, machine),
		}
		out = append(out, create, set)
	}
	return out
}

func checkCreateFirst(intents []Intent) error {
	if len(intents) == 0 || intents[0].Category() == CategoryCreate {
		return nil
	}
	for i, in := range intents {
		if in.Category() == CategoryCreate {
			return fmt.Errorf("%w: found at position %d", ErrCreateNotFirst, i)
		}
	}
	return nil
}
