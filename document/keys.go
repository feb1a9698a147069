package document

// Section identifies which part of a multi-chapter document a value came from.
// The same field name ("address", "registration number") appears once per
// registrant, so values are keyed by section and field together.
type Section int

const (
	SectionDocument Section = iota
	SectionApplicant
	SectionManufacturer
)

func (s Section) String() string {
	switch s {
	case SectionApplicant:
		return "applicant"
	case SectionManufacturer:
		return "manufacturer"
	default:
		return "document"
	}
}

// Field is a value collected from a source page.
type Field int

const (
	FieldRegNumber Field = iota
	FieldAddress
	FieldName
	FieldDocumentName
	FieldRegulation
	FieldStandards
)

func (f Field) String() string {
	switch f {
	case FieldRegNumber:
		return "reg_number"
	case FieldAddress:
		return "address"
	case FieldName:
		return "name"
	case FieldDocumentName:
		return "document_name"
	case FieldRegulation:
		return "regulation"
	case FieldStandards:
		return "standards"
	default:
		return "unknown"
	}
}

// Key addresses one collected value.
type Key struct {
	Section Section
	Field   Field
}

func (k Key) String() string { return k.Section.String() + "." + k.Field.String() }

// Fields is the set of values collected from the chapters of a document.
type Fields map[Key]string

// Get returns the value for key or Unavailable when it was not collected.
func (f Fields) Get(s Section, fld Field) string {
	if v, ok := f[Key{s, fld}]; ok && v != "" {
		return v
	}
	return Unavailable
}

// Set stores v under key unless v is empty. The first non-empty value wins.
func (f Fields) Set(s Section, fld Field, v string) {
	if v == "" {
		return
	}
	k := Key{s, fld}
	if _, ok := f[k]; ok {
		return
	}
	f[k] = v
}
