package vm

// InternPool canonicalizes string-literal objects so that two identical
// source literals resolve to the same heap object, the way every
// managed runtime interns compile-time string constants. Interned
// objects are allocated MarkEternal and never participate in sweep.
//
// The pool only owns identity; the actual character storage a String
// instance carries is the class library's concern (string-encoding
// helpers are an external collaborator), so InternPool is keyed by the
// literal's own content string rather than reaching into object fields.
type InternPool struct {
	mu      deadlockMu
	byValue map[string]*Object
	class   *ClassDescriptor
	heap    *Heap
}

// NewInternPool creates a pool that builds new entries as instances of
// stringClass via heap.
func NewInternPool(heap *Heap, stringClass *ClassDescriptor) *InternPool {
	return &InternPool{
		byValue: make(map[string]*Object),
		class:   stringClass,
		heap:    heap,
	}
}

// Intern returns the canonical object for content, allocating one on
// first use. ctx is only needed the first time a given content string
// is interned; subsequent calls return the cached object without
// touching the allocator.
func (p *InternPool) Intern(ctx *ThreadContext, content string) (*Object, error) {
	p.mu.Lock()
	if obj, ok := p.byValue[content]; ok {
		p.mu.Unlock()
		return obj, nil
	}
	p.mu.Unlock()

	obj, err := p.heap.Alloc(ctx, p.class, MarkEternal)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.byValue[content]; ok {
		// another thread interned the same content first; discard obj
		return existing, nil
	}
	p.byValue[content] = obj
	return obj, nil
}

// Lookup returns the already-interned object for content without
// allocating, or nil if content has never been interned.
func (p *InternPool) Lookup(content string) *Object {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byValue[content]
}

// Count returns the number of distinct interned literals.
func (p *InternPool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byValue)
}
