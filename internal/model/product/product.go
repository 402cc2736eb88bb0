package product

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Price carries a price in both display currencies.
type Price struct {
	ETB         float64   `json:"etb"`
	USD         float64   `json:"usd"`
	FXTimestamp time.Time `json:"fxTimestamp"`
}

// summaryKeys are the members the compare endpoint accepts.
var summaryKeys = []string{
	"id", "title", "imageUrl", "aiMatchPercentage", "price", "productRating",
	"sellerScore", "deliveryEstimate", "summaryBullets", "deeplinkUrl",
}

// Product is a search result or comparison candidate as returned by the
// backend. Only the id and title are read here; every other member is kept
// as received and written back out untouched.
type Product struct {
	ID    string
	Title string

	raw      json.RawMessage
	rawID    string
	rawTitle string
}

// Parse decodes a single product object.
func Parse(data []byte) (Product, error) {
	var p Product
	if err := json.Unmarshal(data, &p); err != nil {
		return Product{}, err
	}
	return p, nil
}

func (p *Product) UnmarshalJSON(data []byte) error {
	raw, id, title, err := decodeRecord(data)
	if err != nil {
		return fmt.Errorf("decode product: %w", err)
	}
	if raw == nil {
		return nil
	}
	*p = Product{ID: id, Title: title, raw: raw, rawID: id, rawTitle: title}
	return nil
}

func (p Product) MarshalJSON() ([]byte, error) {
	if p.raw != nil && p.ID == p.rawID && p.Title == p.rawTitle {
		return p.raw, nil
	}
	return json.Marshal(p.Fields())
}

// Fields returns every member of the product, including ones this service
// does not know about.
func (p Product) Fields() map[string]json.RawMessage {
	fields := make(map[string]json.RawMessage)
	if p.raw != nil {
		_ = json.Unmarshal(p.raw, &fields)
	}
	fields["id"] = mustString(p.ID)
	fields["title"] = mustString(p.Title)
	return fields
}

// FromFields builds a product from its members.
func FromFields(fields map[string]json.RawMessage) (Product, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return Product{}, err
	}
	return Parse(data)
}

// Summary is the reduced member set the compare endpoint accepts.
type Summary struct {
	ID    string
	Title string

	raw      json.RawMessage
	rawID    string
	rawTitle string
}

func (s *Summary) UnmarshalJSON(data []byte) error {
	raw, id, title, err := decodeRecord(data)
	if err != nil {
		return fmt.Errorf("decode product summary: %w", err)
	}
	if raw == nil {
		return nil
	}
	*s = Summary{ID: id, Title: title, raw: raw, rawID: id, rawTitle: title}
	return nil
}

func (s Summary) MarshalJSON() ([]byte, error) {
	if s.raw != nil && s.ID == s.rawID && s.Title == s.rawTitle {
		return s.raw, nil
	}
	fields := make(map[string]json.RawMessage)
	if s.raw != nil {
		_ = json.Unmarshal(s.raw, &fields)
	}
	fields["id"] = mustString(s.ID)
	fields["title"] = mustString(s.Title)
	return json.Marshal(fields)
}

// Summarize projects p onto the comparison payload. Members p does not carry
// stay absent.
func (p Product) Summarize() Summary {
	fields := p.Fields()
	picked := make(map[string]json.RawMessage, len(summaryKeys))
	for _, key := range summaryKeys {
		if v, ok := fields[key]; ok {
			picked[key] = v
		}
	}
	raw, err := json.Marshal(picked)
	if err != nil {
		return Summary{ID: p.ID, Title: p.Title}
	}
	return Summary{ID: p.ID, Title: p.Title, raw: raw, rawID: p.ID, rawTitle: p.Title}
}

// Summarize keeps the input order.
func Summarize(products []Product) []Summary {
	out := make([]Summary, 0, len(products))
	for _, p := range products {
		out = append(out, p.Summarize())
	}
	return out
}

// decodeRecord checks that data is a JSON object and reads its id and title.
// A JSON null yields a nil raw. Ids sent as numbers are kept as their text.
func decodeRecord(data []byte) (raw json.RawMessage, id, title string, err error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, "", "", nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, "", "", err
	}
	return append(json.RawMessage(nil), trimmed...), text(fields["id"]), text(fields["title"]), nil
}

func text(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func mustString(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}
