// Package schema defines the declarative field contracts for every content
// kind the bot can publish (items, services, events, news). Each kind exposes
// an ordered list of field descriptors; fields flagged as AI-extracted carry
// the prompt metadata the extraction adapter needs.
package schema

import (
	"fmt"
	"time"
)

// Kind identifies a content kind.
type Kind string

const (
	KindItem    Kind = "item"
	KindService Kind = "service"
	KindEvent   Kind = "event"
	KindNews    Kind = "news"
)

// Kinds lists all supported content kinds in registration order.
func Kinds() []Kind {
	return []Kind{KindItem, KindService, KindEvent, KindNews}
}

// FieldType is the semantic type a field value must coerce to.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeNumber   FieldType = "number"
	TypeInteger  FieldType = "integer"
	TypeBool     FieldType = "bool"
	TypeDateTime FieldType = "datetime"
	TypeList     FieldType = "list"
	TypeObject   FieldType = "object"
)

// Canonical field names referenced by the ingestion pipeline when filling
// values derived from the source message rather than from extraction.
const (
	FieldTitle        = "title"
	FieldCategory     = "category"
	FieldDescription  = "description"
	FieldPrice        = "price"
	FieldCurrency     = "currency"
	FieldDate         = "date"
	FieldAuthor       = "author"
	FieldUserID       = "userId"
	FieldCommunityID  = "communityId"
	FieldMessageID    = "messageId"
	FieldMediaGroupID = "mediaGroupId"
	FieldPublishedAt  = "publishedAt"
)

// Field describes a single field of a content kind.
//
// Default is invoked lazily, once per missing field, and is never memoized so
// timestamp defaults reflect the time of the call. Extracted fields must carry
// both Description and Example; the registry refuses to construct otherwise.
type Field struct {
	Name        string
	Type        FieldType
	Default     func() any
	Extracted   bool
	Description string
	Example     string
}

// Registry holds the field contracts for all content kinds.
type Registry struct {
	kinds map[Kind][]Field
	descs map[Kind]string
}

// NewRegistry builds the registry for all four content kinds and validates it.
// Any AI-extracted field missing a description or example is a construction
// error: an incomplete prompt must never reach the extraction service.
func NewRegistry() (*Registry, error) {
	r := &Registry{
		kinds: map[Kind][]Field{
			KindItem:    itemFields(),
			KindService: serviceFields(),
			KindEvent:   eventFields(),
			KindNews:    newsFields(),
		},
		descs: map[Kind]string{
			KindItem:    "an item offered for sale in a local community",
			KindService: "a service offered in a local community",
			KindEvent:   "a community event announcement",
			KindNews:    "a community news post",
		},
	}

	for kind, fields := range r.kinds {
		if err := ValidateFields(kind, fields); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ValidateFields checks a field list for a kind. It is called at registry
// construction and exported so alternative field tables can be checked the
// same way.
func ValidateFields(kind Kind, fields []Field) error {
	for _, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("schema %s: field with empty name", kind)
		}
		if f.Default == nil {
			return fmt.Errorf("schema %s: field %q has no default supplier", kind, f.Name)
		}
		if f.Extracted && (f.Description == "" || f.Example == "") {
			return fmt.Errorf("schema %s: extracted field %q is missing description or example", kind, f.Name)
		}
	}
	return nil
}

// Fields returns the ordered field descriptors for a kind. The returned slice
// must not be modified.
func (r *Registry) Fields(kind Kind) ([]Field, error) {
	fields, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown content kind %q", kind)
	}
	return fields, nil
}

// ExtractedFields returns only the fields the extraction service is asked for.
func (r *Registry) ExtractedFields(kind Kind) ([]Field, error) {
	fields, err := r.Fields(kind)
	if err != nil {
		return nil, err
	}
	var out []Field
	for _, f := range fields {
		if f.Extracted {
			out = append(out, f)
		}
	}
	return out, nil
}

// Describe returns the human description of a kind used to contextualize the
// extraction prompt.
func (r *Registry) Describe(kind Kind) string {
	return r.descs[kind]
}

func emptyString() any  { return "" }
func zeroNumber() any   { return float64(0) }
func zeroInteger() any  { return int64(0) }
func nowTimestamp() any { return time.Now().UTC() }

func commonLeadFields() []Field {
	return []Field{
		{
			Name: FieldTitle, Type: TypeString, Default: emptyString, Extracted: true,
			Description: "Short title summarizing the post",
			Example:     "Vintage Bicycle",
		},
		{
			Name: FieldCategory, Type: TypeString, Default: emptyString, Extracted: true,
			Description: "Category the post belongs to",
			Example:     "used items",
		},
		{
			Name: FieldDescription, Type: TypeString, Default: emptyString, Extracted: true,
			Description: "Full description of the post in the author's words",
			Example:     "Classic 1980s road bike, perfect for city commutes or weekend rides.",
		},
	}
}

func commonTailFields() []Field {
	return []Field{
		{Name: FieldAuthor, Type: TypeString, Default: emptyString},
		{Name: FieldUserID, Type: TypeInteger, Default: zeroInteger},
		{Name: FieldCommunityID, Type: TypeString, Default: emptyString},
		{Name: FieldMessageID, Type: TypeInteger, Default: zeroInteger},
		{Name: FieldMediaGroupID, Type: TypeString, Default: emptyString},
		{Name: FieldPublishedAt, Type: TypeDateTime, Default: nowTimestamp},
	}
}

func priceFields() []Field {
	return []Field{
		{
			Name: FieldPrice, Type: TypeNumber, Default: zeroNumber, Extracted: true,
			Description: "Asking price as a number, without currency symbols",
			Example:     "150",
		},
		{
			Name: FieldCurrency, Type: TypeString, Default: emptyString, Extracted: true,
			Description: "Currency of the price as a three-letter code or symbol found in the text",
			Example:     "EUR",
		},
	}
}

func itemFields() []Field {
	fields := commonLeadFields()
	fields = append(fields, priceFields()...)
	return append(fields, commonTailFields()...)
}

func serviceFields() []Field {
	fields := commonLeadFields()
	fields = append(fields, priceFields()...)
	return append(fields, commonTailFields()...)
}

func eventFields() []Field {
	fields := commonLeadFields()
	fields = append(fields, Field{
		Name: FieldDate, Type: TypeDateTime, Default: nowTimestamp, Extracted: true,
		Description: "Date and time the event takes place, in the future",
		Example:     "2023-07-15T14:00:00",
	})
	return append(fields, commonTailFields()...)
}

func newsFields() []Field {
	fields := commonLeadFields()
	return append(fields, commonTailFields()...)
}
