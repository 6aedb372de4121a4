package channel

import (
	"reflect"
	"testing"
)

// TestNormalize verifies default-field name normalization.
func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare name gains VAL", "XRD:m1", "XRD:m1.VAL"},
		{"field suffix is kept", "XRD:m1.RBV", "XRD:m1.RBV"},
		{"already normalized is unchanged", "XRD:m1.VAL", "XRD:m1.VAL"},
		{"whitespace trimmed", "  XRD:m1 ", "XRD:m1.VAL"},
		{"empty stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("idempotent", func(t *testing.T) {
		once := Normalize("XRD:m1")
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize(Normalize(x)) = %q, want %q", twice, once)
		}
	})

	t.Run("explicit field", func(t *testing.T) {
		if got := NormalizeField("XRD:m1", "RBV"); got != "XRD:m1.RBV" {
			t.Errorf("NormalizeField() = %q, want %q", got, "XRD:m1.RBV")
		}
	})
}

// TestClassify verifies the prioritized display tuples per record kind.
func TestClassify(t *testing.T) {
	tests := []struct {
		kind RecordKind
		want []DisplayType
	}{
		{KindMotor, []DisplayType{DisplayMotor, DisplayNumeric, DisplayString}},
		{KindEnum, []DisplayType{DisplayEnum, DisplayNumeric, DisplayString}},
		{KindStringField, []DisplayType{DisplayString, DisplayNumeric}},
		{KindOther, []DisplayType{DisplayNumeric, DisplayString}},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := Classify(tt.kind); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Classify(%v) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

// TestKindFromRecord verifies classification from live record metadata.
func TestKindFromRecord(t *testing.T) {
	tests := []struct {
		name       string
		recordType string
		field      string
		valueType  string
		count      int
		want       RecordKind
	}{
		{"motor primary field", "motor", "VAL", "double", 1, KindMotor},
		{"motor implicit field", "motor", "", "double", 1, KindMotor},
		{"motor non-primary field", "motor", "RBV", "double", 1, KindOther},
		{"char array is text", "waveform", "VAL", "char", 128, KindStringField},
		{"single char is not text", "ai", "VAL", "char", 1, KindOther},
		{"enum", "mbbo", "VAL", "enum", 1, KindEnum},
		{"time enum", "mbbo", "VAL", "time_enum", 1, KindEnum},
		{"string", "stringout", "VAL", "string", 1, KindStringField},
		{"plain numeric", "ai", "VAL", "double", 1, KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KindFromRecord(tt.recordType, tt.field, tt.valueType, tt.count)
			if got != tt.want {
				t.Errorf("KindFromRecord(%q, %q, %q, %d) = %v, want %v",
					tt.recordType, tt.field, tt.valueType, tt.count, got, tt.want)
			}
		})
	}
}

// TestKindNameRoundTrip verifies stored name mapping.
func TestKindNameRoundTrip(t *testing.T) {
	for _, kind := range []RecordKind{KindOther, KindMotor, KindEnum, KindStringField} {
		if got := KindFromName(kind.String()); got != kind {
			// KindOther stores as "numeric" and maps back through the default.
			if !(kind == KindOther && got == KindOther) {
				t.Errorf("KindFromName(%q) = %v, want %v", kind.String(), got, kind)
			}
		}
	}

	if got := KindFromName("unrecognised"); got != KindOther {
		t.Errorf("KindFromName(unrecognised) = %v, want KindOther", got)
	}
}
