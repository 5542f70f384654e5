package mcphost

// TransportKind identifies the variant of a TransportDescriptor.
type TransportKind string

const (
	TransportNetwork TransportKind = "network"
	TransportProcess TransportKind = "process"
)

// TransportOf returns the variant of d, or "" for nil.
func TransportOf(d TransportDescriptor) TransportKind {
	if d == nil {
		return ""
	}
	return d.transport()
}

// AsNetwork narrows d to *NetworkDescriptor.
func AsNetwork(d TransportDescriptor) (*NetworkDescriptor, bool) {
	n, ok := d.(*NetworkDescriptor)
	return n, ok && n != nil
}

// AsProcess narrows d to *ProcessDescriptor.
func AsProcess(d TransportDescriptor) (*ProcessDescriptor, bool) {
	p, ok := d.(*ProcessDescriptor)
	return p, ok && p != nil
}
