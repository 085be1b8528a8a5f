package uds

// ServiceDescriptor bundles everything the Dispatcher needs for one
// registered DID name: the constant request bytes, the compiled positive
// response descriptor, and the negative-response checker. Per spec.md §9
// ("Request/response closures vs. descriptors"), this single mapping
// replaces the source's four parallel dictionaries (requestSIDFunctions,
// requestDIDFunctions, posResponseObjects, negativeResponseFunctions) —
// they shared one key space incidentally, not by design.
type ServiceDescriptor struct {
	RequestSID  []byte
	RequestDID  []byte
	PosResponse *PosResponse
	NegChecker  *NegResponseChecker
}

// ServiceContainer holds the compiled descriptors for one UDS service
// (Read-Data-By-Identifier is the only one this core builds), keyed by the
// ODX DiagInstanceName. It is populated exactly once at connection
// construction time and is immutable afterward — safe to share across
// goroutines driving independent connections.
type ServiceContainer struct {
	descriptors map[string]*ServiceDescriptor
}

func NewServiceContainer() *ServiceContainer {
	return &ServiceContainer{descriptors: make(map[string]*ServiceDescriptor)}
}

// Register adds a compiled descriptor under its human-readable name. Called
// only by the ODX compiler during container construction.
func (c *ServiceContainer) Register(name string, descriptor *ServiceDescriptor) {
	c.descriptors[name] = descriptor
}

// Lookup returns the descriptor registered under name, or ErrUnknownIdentifier.
func (c *ServiceContainer) Lookup(name string) (*ServiceDescriptor, error) {
	d, ok := c.descriptors[name]
	if !ok {
		return nil, ErrUnknownIdentifier
	}
	return d, nil
}

// Names returns every DID name registered in the container.
func (c *ServiceContainer) Names() []string {
	names := make([]string, 0, len(c.descriptors))
	for name := range c.descriptors {
		names = append(names, name)
	}
	return names
}
