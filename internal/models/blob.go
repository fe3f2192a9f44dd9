package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ReadStoredBlob extracts the record lists from provider metadata without
// decoding the elements. A missing, null or non-array list reads as empty.
func ReadStoredBlob(meta Metadata) (StoredBlob, error) {
	blob := StoredBlob{Cards: []json.RawMessage{}, Passwords: []json.RawMessage{}}

	for _, s := range []Section{SectionCards, SectionPasswords} {
		raw, ok := arrayValue(meta, s)
		if !ok {
			continue
		}
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return StoredBlob{}, fmt.Errorf("%w: %s: %v", ErrMalformedBlob, s, err)
		}
		blob.set(s, elems)
	}
	return blob, nil
}

// Append encodes record and adds it after the last element of section.
func (b *StoredBlob) Append(s Section, record any) error {
	if !s.Valid() {
		return fmt.Errorf("unknown section %q", s)
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", s, err)
	}
	b.set(s, append(b.section(s), raw))
	return nil
}

// Patch builds a top-level metadata patch for the named sections, both when
// none are named. Elements are written exactly as they were read.
func (b StoredBlob) Patch(sections ...Section) (Metadata, error) {
	if len(sections) == 0 {
		sections = []Section{SectionCards, SectionPasswords}
	}
	patch := make(Metadata, len(sections))
	for _, s := range sections {
		if !s.Valid() {
			return nil, fmt.Errorf("unknown section %q", s)
		}
		patch[string(s)] = joinArray(b.section(s))
	}
	return patch, nil
}

// Decode turns the stored elements into typed records for display. Only an
// element that is not a JSON object fails.
func (b StoredBlob) Decode() (Blob, error) {
	blob := Blob{Cards: make([]Card, len(b.Cards)), Passwords: make([]Password, len(b.Passwords))}
	for i, raw := range b.Cards {
		if err := json.Unmarshal(raw, &blob.Cards[i]); err != nil {
			return Blob{}, fmt.Errorf("%w: cards[%d]: %v", ErrMalformedBlob, i, err)
		}
	}
	for i, raw := range b.Passwords {
		if err := json.Unmarshal(raw, &blob.Passwords[i]); err != nil {
			return Blob{}, fmt.Errorf("%w: passwords[%d]: %v", ErrMalformedBlob, i, err)
		}
	}
	return blob, nil
}

// DecodeBlob reads and decodes the record lists of meta.
func DecodeBlob(meta Metadata) (Blob, error) {
	stored, err := ReadStoredBlob(meta)
	if err != nil {
		return Blob{}, err
	}
	return stored.Decode()
}

func (b *StoredBlob) section(s Section) []json.RawMessage {
	if s == SectionCards {
		return b.Cards
	}
	return b.Passwords
}

func (b *StoredBlob) set(s Section, elems []json.RawMessage) {
	if s == SectionCards {
		b.Cards = elems
		return
	}
	b.Passwords = elems
}

func joinArray(elems []json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range elems {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(e)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

func arrayValue(meta Metadata, s Section) (json.RawMessage, bool) {
	raw, ok := meta[string(s)]
	if !ok {
		return nil, false
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	return trimmed, true
}

// UnmarshalJSON accepts the current card shape as well as older ones that
// used cardNumber, name, holder and numeric values.
func (c *Card) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         json.RawMessage `json:"id"`
		CardName   json.RawMessage `json:"cardName"`
		Name       json.RawMessage `json:"name"`
		CardNo     json.RawMessage `json:"cardNo"`
		CardNumber json.RawMessage `json:"cardNumber"`
		ExpiryDate json.RawMessage `json:"expiryDate"`
		CVV        json.RawMessage `json:"cvv"`
		HolderName json.RawMessage `json:"holderName"`
		Holder     json.RawMessage `json:"holder"`
		CreatedAt  json.RawMessage `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = Card{
		ID:         scalarString(raw.ID),
		CardName:   firstNonEmpty(scalarString(raw.CardName), scalarString(raw.Name)),
		CardNo:     firstNonEmpty(scalarString(raw.CardNo), scalarString(raw.CardNumber)),
		ExpiryDate: scalarString(raw.ExpiryDate),
		CVV:        scalarString(raw.CVV),
		HolderName: firstNonEmpty(scalarString(raw.HolderName), scalarString(raw.Holder)),
		CreatedAt:  parseTimestamp(scalarString(raw.CreatedAt)),
	}
	return nil
}

// UnmarshalJSON accepts the current password shape as well as entries that
// used url or website for the address and numeric values.
func (p *Password) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         json.RawMessage `json:"id"`
		WebsiteURL json.RawMessage `json:"websiteUrl"`
		URL        json.RawMessage `json:"url"`
		Website    json.RawMessage `json:"website"`
		Username   json.RawMessage `json:"username"`
		Password   json.RawMessage `json:"password"`
		CreatedAt  json.RawMessage `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Password{
		ID:         scalarString(raw.ID),
		WebsiteURL: firstNonEmpty(scalarString(raw.WebsiteURL), scalarString(raw.URL), scalarString(raw.Website)),
		Username:   scalarString(raw.Username),
		Password:   scalarString(raw.Password),
		CreatedAt:  parseTimestamp(scalarString(raw.CreatedAt)),
	}
	return nil
}

func scalarString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// timestampLayouts are tried in order; an unparsable value reads as zero.
var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
