package vm

import (
	"fmt"
)

// Method is anything the vtable can dispatch to. Codegen supplies the
// concrete implementations; the CORE only needs to invoke them.
type Method interface {
	Invoke(ctx *ThreadContext, receiver *Object, args []*Object) (*Object, error)
}

// MarkHook lets a class override the generic field walk during GC
// tracing — used by array-like classes whose element storage isn't a
// fixed field layout.
type MarkHook func(obj *Object, mark func(*Object))

// ClassDescriptor is the runtime representation of a class: layout,
// dispatch table, and the bookkeeping the collector and class registry
// need. Instances of ClassDescriptor are themselves bound to the
// metaclass descriptor and are always MarkEternal.
type ClassDescriptor struct {
	Name       string
	Namespace  string
	Superclass *ClassDescriptor
	Interfaces []*ClassDescriptor

	VTable      *VTable
	ClassVTable *VTable

	NumFields int // total pointer-field count including inherited

	Primitive bool // true for built-in scalar classes (no field layout)

	// Array classes carry their element class and stay nil otherwise.
	ArrayDims     int
	ComponentType *ClassDescriptor

	StaticInit     func()
	AnnotationInit func()
	Mark           MarkHook

	// ClassVars holds per-class ("static") storage: references that
	// outlive any instance and that the collector must scan as roots
	// since nothing else keeps them reachable.
	ClassVars   []*Object
	classVarsMu deadlockMu

	assignable map[*ClassDescriptor]bool    // transitive superclass+interface set
	dispatch   map[*ClassDescriptor]*VTable // interface -> dispatch vtable cache

	liveCount      atomic64
	finalizedCount atomic64

	asObject *Object // this descriptor reified as a heap object, lazily bound
}

// NewClassDescriptor creates a descriptor with the given superclass.
// VTable and ClassVTable are linked to the superclass's for inheritance.
func NewClassDescriptor(name string, superclass *ClassDescriptor) *ClassDescriptor {
	var parentVT, parentClassVT *VTable
	numFields := 0
	if superclass != nil {
		parentVT = superclass.VTable
		parentClassVT = superclass.ClassVTable
		numFields = superclass.NumFields
	}
	desc := &ClassDescriptor{
		Name:       name,
		Superclass: superclass,
		NumFields:  numFields,
	}
	desc.VTable = NewVTable(desc, parentVT)
	desc.ClassVTable = NewVTable(desc, parentClassVT)
	return desc
}

// NewClassDescriptorWithFields creates a descriptor that adds addedFields
// pointer slots on top of whatever the superclass already occupies.
func NewClassDescriptorWithFields(name string, superclass *ClassDescriptor, addedFields int) *ClassDescriptor {
	desc := NewClassDescriptor(name, superclass)
	desc.NumFields += addedFields
	return desc
}

// IsSubclassOf reports whether desc is other or a descendant of other.
func (desc *ClassDescriptor) IsSubclassOf(other *ClassDescriptor) bool {
	for c := desc; c != nil; c = c.Superclass {
		if c == other {
			return true
		}
	}
	return false
}

// Implements reports whether desc declares iface, directly or inherited.
func (desc *ClassDescriptor) Implements(iface *ClassDescriptor) bool {
	for c := desc; c != nil; c = c.Superclass {
		for _, i := range c.Interfaces {
			if i == iface || i.Implements(iface) {
				return true
			}
		}
	}
	return false
}

// IsAssignableFrom reports whether a value of class target may be
// stored where a value of class desc is expected — i.e. target is desc
// or a descendant/implementor of desc. Backed by target's precomputed
// assignability set when target is registered; falls back to walking
// the hierarchy directly otherwise.
func (desc *ClassDescriptor) IsAssignableFrom(target *ClassDescriptor) bool {
	if desc == target {
		return true
	}
	if desc.ArrayDims > 0 && target.ArrayDims > 0 {
		if desc.ComponentType == nil || target.ComponentType == nil {
			return false
		}
		return desc.ComponentType.IsAssignableFrom(target.ComponentType)
	}
	if target.assignable != nil {
		return target.assignable[desc]
	}
	return target.IsSubclassOf(desc) || target.Implements(desc)
}

// Superclasses returns every ancestor from immediate parent to root.
func (desc *ClassDescriptor) Superclasses() []*ClassDescriptor {
	var result []*ClassDescriptor
	for c := desc.Superclass; c != nil; c = c.Superclass {
		result = append(result, c)
	}
	return result
}

// Depth returns the inheritance depth (0 for a root class).
func (desc *ClassDescriptor) Depth() int {
	depth := 0
	for c := desc.Superclass; c != nil; c = c.Superclass {
		depth++
	}
	return depth
}

// FullName returns the namespace-qualified name.
func (desc *ClassDescriptor) FullName() string {
	if desc.Namespace == "" {
		return desc.Name
	}
	return desc.Namespace + "::" + desc.Name
}

func (desc *ClassDescriptor) String() string { return desc.FullName() }

// LiveCount and FinalizedCount are diagnostic counters bumped by the
// allocator and finalizer respectively.
func (desc *ClassDescriptor) LiveCount() uint64      { return desc.liveCount.load() }
func (desc *ClassDescriptor) FinalizedCount() uint64 { return desc.finalizedCount.load() }

// EnsureClassVars grows the ClassVars slot slice to at least n entries.
func (desc *ClassDescriptor) EnsureClassVars(n int) {
	desc.classVarsMu.Lock()
	defer desc.classVarsMu.Unlock()
	if len(desc.ClassVars) < n {
		grown := make([]*Object, n)
		copy(grown, desc.ClassVars)
		desc.ClassVars = grown
	}
}

// ClassVar returns the class variable at index, or nil if unset/out of range.
func (desc *ClassDescriptor) ClassVar(index int) *Object {
	desc.classVarsMu.Lock()
	defer desc.classVarsMu.Unlock()
	if index < 0 || index >= len(desc.ClassVars) {
		return nil
	}
	return desc.ClassVars[index]
}

// SetClassVar stores a class variable, growing the slot slice if needed.
func (desc *ClassDescriptor) SetClassVar(index int, value *Object) {
	desc.classVarsMu.Lock()
	defer desc.classVarsMu.Unlock()
	if index >= len(desc.ClassVars) {
		grown := make([]*Object, index+1)
		copy(grown, desc.ClassVars)
		desc.ClassVars = grown
	}
	desc.ClassVars[index] = value
}

// rootRefs calls visit for every class-variable slot, for the
// collector's root scan.
func (desc *ClassDescriptor) rootRefs(visit func(*Object)) {
	desc.classVarsMu.Lock()
	defer desc.classVarsMu.Unlock()
	for _, v := range desc.ClassVars {
		visit(v)
	}
}

// ---------------------------------------------------------------------------
// ClassRegistry
// ---------------------------------------------------------------------------

// ClassRegistry is the process-wide table of registered classes. It
// builds each class's assignability set and interface dispatch cache
// at registration time so that instance-of checks and interface calls
// are O(1) lookups afterward.
type ClassRegistry struct {
	mu      deadlockRW
	classes map[string]*ClassDescriptor
}

// NewClassRegistry creates an empty registry.
func NewClassRegistry() *ClassRegistry {
	return &ClassRegistry{classes: make(map[string]*ClassDescriptor)}
}

// Register adds desc to the registry under its fully qualified name and
// computes its assignability set and interface dispatch cache. A
// structurally valid descriptor never fails; Register only returns an
// error when name is already bound to a different descriptor, since the
// registry never allows redefinition of a live eternal class.
func (r *ClassRegistry) Register(desc *ClassDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := desc.FullName()
	if existing, ok := r.classes[key]; ok && existing != desc {
		return fmt.Errorf("vm: class %q already registered", key)
	}
	r.classes[key] = desc
	desc.assignable = buildAssignabilitySet(desc)
	desc.dispatch = buildDispatchCache(desc)
	return nil
}

// Lookup finds a registered class by fully qualified name.
func (r *ClassRegistry) Lookup(name string) *ClassDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.classes[name]
}

// LookupInNamespace finds a class by namespace and simple name.
func (r *ClassRegistry) LookupInNamespace(namespace, name string) *ClassDescriptor {
	key := name
	if namespace != "" {
		key = namespace + "::" + name
	}
	return r.Lookup(key)
}

// All returns every registered class.
func (r *ClassRegistry) All() []*ClassDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*ClassDescriptor, 0, len(r.classes))
	for _, c := range r.classes {
		result = append(result, c)
	}
	return result
}

// Len returns the number of registered classes.
func (r *ClassRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.classes)
}

// buildAssignabilitySet walks desc's superclass chain and interface
// graph, recording every class a desc instance may be assigned to.
func buildAssignabilitySet(desc *ClassDescriptor) map[*ClassDescriptor]bool {
	set := make(map[*ClassDescriptor]bool)
	var walkInterfaces func(c *ClassDescriptor)
	walkInterfaces = func(c *ClassDescriptor) {
		for _, i := range c.Interfaces {
			if !set[i] {
				set[i] = true
				walkInterfaces(i)
			}
		}
	}
	for c := desc; c != nil; c = c.Superclass {
		set[c] = true
		walkInterfaces(c)
	}
	return set
}

// buildDispatchCache precomputes, for every interface desc implements,
// the vtable that satisfies it — so an interface call site resolves in
// one map lookup instead of re-walking the hierarchy per call.
func buildDispatchCache(desc *ClassDescriptor) map[*ClassDescriptor]*VTable {
	cache := make(map[*ClassDescriptor]*VTable)
	for iface := range desc.assignable {
		if iface.VTable != nil && iface != desc {
			cache[iface] = desc.VTable
		}
	}
	return cache
}

// DispatchFor returns the vtable to use when desc is accessed through
// iface, or nil if desc does not implement iface.
func (desc *ClassDescriptor) DispatchFor(iface *ClassDescriptor) *VTable {
	if iface == desc {
		return desc.VTable
	}
	if desc.dispatch == nil {
		return nil
	}
	return desc.dispatch[iface]
}
