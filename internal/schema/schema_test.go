package schema

import (
	"testing"
	"time"
)

func TestNewRegistryValidatesAllKinds(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() returned error: %v", err)
	}

	for _, kind := range Kinds() {
		fields, err := r.Fields(kind)
		if err != nil {
			t.Fatalf("Fields(%s) returned error: %v", kind, err)
		}
		if len(fields) == 0 {
			t.Errorf("Fields(%s) is empty", kind)
		}
		for _, f := range fields {
			if f.Extracted && (f.Description == "" || f.Example == "") {
				t.Errorf("kind %s: extracted field %q passed validation without description or example", kind, f.Name)
			}
		}
	}

	if _, err := r.Fields(Kind("advert")); err == nil {
		t.Error("Fields() accepted an unknown kind")
	}
}

func TestValidateFieldsRejectsIncompleteExtractionMetadata(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		field   Field
		wantErr bool
	}{
		{
			name:  "complete extracted field",
			field: Field{Name: "title", Type: TypeString, Default: emptyString, Extracted: true, Description: "d", Example: "e"},
		},
		{
			name:    "extracted field without description",
			field:   Field{Name: "title", Type: TypeString, Default: emptyString, Extracted: true, Example: "e"},
			wantErr: true,
		},
		{
			name:    "extracted field without example",
			field:   Field{Name: "title", Type: TypeString, Default: emptyString, Extracted: true, Description: "d"},
			wantErr: true,
		},
		{
			name:  "plain field needs neither",
			field: Field{Name: "author", Type: TypeString, Default: emptyString},
		},
		{
			name:    "missing default supplier",
			field:   Field{Name: "author", Type: TypeString},
			wantErr: true,
		},
		{
			name:    "empty name",
			field:   Field{Type: TypeString, Default: emptyString},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateFields(KindItem, []Field{tc.field})
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateFields() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestDefaultsAreLazyAndNotMemoized(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() returned error: %v", err)
	}

	fields, err := r.Fields(KindNews)
	if err != nil {
		t.Fatalf("Fields(news) returned error: %v", err)
	}

	var published Field
	for _, f := range fields {
		if f.Name == FieldPublishedAt {
			published = f
		}
	}
	if published.Default == nil {
		t.Fatal("publishedAt field has no default supplier")
	}

	first, ok := published.Default().(time.Time)
	if !ok {
		t.Fatalf("publishedAt default is %T, want time.Time", published.Default())
	}
	time.Sleep(5 * time.Millisecond)
	second := published.Default().(time.Time)
	if !second.After(first) {
		t.Errorf("publishedAt default was memoized: first=%v second=%v", first, second)
	}
}

func TestExtractedFieldsSubset(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() returned error: %v", err)
	}

	extracted, err := r.ExtractedFields(KindItem)
	if err != nil {
		t.Fatalf("ExtractedFields(item) returned error: %v", err)
	}

	want := map[string]bool{
		FieldTitle: true, FieldCategory: true, FieldDescription: true,
		FieldPrice: true, FieldCurrency: true,
	}
	if len(extracted) != len(want) {
		t.Fatalf("ExtractedFields(item) returned %d fields, want %d", len(extracted), len(want))
	}
	for _, f := range extracted {
		if !want[f.Name] {
			t.Errorf("unexpected extracted field %q", f.Name)
		}
	}
}
