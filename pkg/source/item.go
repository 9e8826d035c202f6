// Package source defines the item model and the ItemSource collaborator that
// paged list fetchers read from.
package source

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Item is a single record of a paged list.
//
// Only the identifier and the display title are interpreted. The complete
// JSON object is kept in Raw so callers can decode their own shape from it.
type Item struct {
	// ID is the stable key of the item.
	ID string `json:"id"`

	// Title is the display field.
	Title string `json:"title"`

	// Raw is the original JSON object the item was decoded from.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes an item from a JSON object.
// The id may be a JSON string or number; the title falls back to "name" and
// then "label" when absent.
func (it *Item) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("item is not a JSON object: %w", err)
	}

	rawID, ok := fields["id"]
	if !ok || bytes.Equal(rawID, []byte("null")) {
		return fmt.Errorf("item has no id")
	}
	id, err := decodeID(rawID)
	if err != nil {
		return err
	}

	var title string
	for _, key := range []string{"title", "name", "label"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &title); err != nil {
			return fmt.Errorf("item %s: field %q is not a string", id, key)
		}
		break
	}

	it.ID = id
	it.Title = title
	it.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the original object when the item was decoded from one.
func (it Item) MarshalJSON() ([]byte, error) {
	if len(it.Raw) > 0 {
		return it.Raw, nil
	}
	return json.Marshal(struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}{it.ID, it.Title})
}

// Decode unmarshals the raw object into v.
func (it Item) Decode(v any) error {
	if len(it.Raw) == 0 {
		return fmt.Errorf("item %s has no raw payload", it.ID)
	}
	return json.Unmarshal(it.Raw, v)
}

func decodeID(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("item has an empty id")
		}
		return s, nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", fmt.Errorf("item id must be a string or number: %s", raw)
	}
	return n.String(), nil
}
