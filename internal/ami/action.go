package ami

import "bytes"

// Action is a single AMI command block. Fields are serialized in
// insertion order; the wire framing is one "Key: Value" line per field,
// CRLF-terminated, with a trailing blank line ending the block. The
// framing must match the server byte for byte.
type Action struct {
	fields []field
}

type field struct {
	key   string
	value string
}

// NewAction creates a command block with its Action field already set.
func NewAction(name string) *Action {
	a := &Action{}
	return a.Set("Action", name)
}

// Set appends a field to the block and returns the block for chaining.
func (a *Action) Set(key, value string) *Action {
	a.fields = append(a.fields, field{key: key, value: value})
	return a
}

// Bytes renders the block in wire format.
func (a *Action) Bytes() []byte {
	var buf bytes.Buffer
	for _, f := range a.fields {
		buf.WriteString(f.key)
		buf.WriteString(": ")
		buf.WriteString(f.value)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}
