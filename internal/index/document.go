package index

// FieldType says how a field is handled at index time. The two flags are
// independent; a field with neither is ignored.
type FieldType struct {
	Indexed bool
	Stored  bool
}

var (
	TypeIndexed       = FieldType{Indexed: true}
	TypeStored        = FieldType{Stored: true}
	TypeIndexedStored = FieldType{Indexed: true, Stored: true}
)

func (t FieldType) flags() byte {
	var b byte
	if t.Indexed {
		b |= 1
	}
	if t.Stored {
		b |= 2
	}
	return b
}

func fieldTypeFromFlags(b byte) FieldType {
	return FieldType{Indexed: b&1 != 0, Stored: b&2 != 0}
}

func (t FieldType) String() string {
	switch {
	case t.Indexed && t.Stored:
		return "indexed+stored"
	case t.Indexed:
		return "indexed"
	case t.Stored:
		return "stored"
	default:
		return "none"
	}
}

// Field is a named value of a document.
type Field struct {
	Name  string
	Value string
	Type  FieldType
}

// Document is an ordered list of fields. A name may repeat; repeated indexed
// values continue the position sequence of the earlier ones.
type Document struct {
	Fields []Field
}

// Add appends a field.
func (d *Document) Add(name, value string, typ FieldType) {
	d.Fields = append(d.Fields, Field{Name: name, Value: value, Type: typ})
}

// Get returns the first value stored under name.
func (d Document) Get(name string) (string, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// FieldInfo describes one field of a segment schema.
type FieldInfo struct {
	Name string
	Type FieldType
}
