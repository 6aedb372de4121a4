package channel

import "strings"

// RecordKind classifies the underlying control-system record of a channel.
// It drives the display-type choices offered for the channel.
type RecordKind int

const (
	// KindOther is any record without special display semantics.
	KindOther RecordKind = iota

	// KindMotor is a positioner record addressed through its VAL field.
	KindMotor

	// KindEnum is a record whose value is one of a fixed set of states.
	KindEnum

	// KindStringField is a record carrying text (including long char
	// arrays presented as strings).
	KindStringField
)

// String returns the kind's stored type name.
func (k RecordKind) String() string {
	switch k {
	case KindMotor:
		return "motor"
	case KindEnum:
		return "enum"
	case KindStringField:
		return "string"
	default:
		return "numeric"
	}
}

// KindFromName maps a stored type name back to a RecordKind.
// Unrecognised names map to KindOther.
func KindFromName(name string) RecordKind {
	switch name {
	case "motor":
		return KindMotor
	case "enum", "time_enum":
		return KindEnum
	case "string", "time_string":
		return KindStringField
	default:
		return KindOther
	}
}

// DisplayType is one way a channel's value can be presented and edited.
type DisplayType string

// Display types, in the order they appear in classification tuples.
const (
	DisplayMotor   DisplayType = "motor"
	DisplayNumeric DisplayType = "numeric"
	DisplayString  DisplayType = "string"
	DisplayEnum    DisplayType = "enum"
)

// Classify returns the prioritized display types applicable to a record
// kind. The first entry is the natural display; the rest are fallbacks a
// UI may offer.
func Classify(kind RecordKind) []DisplayType {
	switch kind {
	case KindMotor:
		return []DisplayType{DisplayMotor, DisplayNumeric, DisplayString}
	case KindEnum:
		return []DisplayType{DisplayEnum, DisplayNumeric, DisplayString}
	case KindStringField:
		return []DisplayType{DisplayString, DisplayNumeric}
	default:
		return []DisplayType{DisplayNumeric, DisplayString}
	}
}

// KindFromRecord derives a RecordKind from live record metadata.
//
// Parameters:
//   - recordType: the record's type name (e.g. "motor", "ai", "stringout")
//   - field: the field suffix of the channel name ("" or "VAL" address the
//     record's primary value)
//   - valueType: the wire type of the value (e.g. "double", "enum", "char")
//   - count: the element count of the value
//
// A motor record addressed through its primary value field classifies as
// KindMotor; a char array longer than one element is text in disguise and
// classifies as KindStringField.
func KindFromRecord(recordType, field, valueType string, count int) RecordKind {
	primary := field == "" || field == "VAL"
	if recordType == "motor" && primary {
		return KindMotor
	}
	if valueType == "char" && count > 1 {
		return KindStringField
	}

	switch valueType {
	case "enum", "time_enum":
		return KindEnum
	case "string", "time_string":
		return KindStringField
	default:
		return KindOther
	}
}

// Normalize returns the channel name with the default field suffix
// appended when the name carries none. Idempotent: names that already
// contain a field separator are returned unchanged.
func Normalize(name string) string {
	return NormalizeField(name, DefaultField)
}

// NormalizeField is Normalize with an explicit default field.
func NormalizeField(name, field string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, ".") {
		return name
	}
	return name + "." + field
}

// DefaultField is the field suffix appended to channel names that carry
// none.
const DefaultField = "VAL"
