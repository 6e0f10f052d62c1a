package vm

// VTable holds the method dispatch table for a class. Methods are
// stored in an array indexed by a stable method-slot ID assigned at
// compile time, giving O(1) lookup for monomorphic call sites.
// Inheritance falls back to walking the parent chain when a slot is
// empty in the receiver's own vtable.
type VTable struct {
	class   *ClassDescriptor
	parent  *VTable
	methods []Method
}

// NewVTable creates a vtable for class, chained to parent for inherited
// method lookup.
func NewVTable(class *ClassDescriptor, parent *VTable) *VTable {
	return &VTable{class: class, parent: parent, methods: make([]Method, 0, 16)}
}

// NewVTableWithCapacity is NewVTable with a pre-sized method slice.
func NewVTableWithCapacity(class *ClassDescriptor, parent *VTable, capacity int) *VTable {
	return &VTable{class: class, parent: parent, methods: make([]Method, 0, capacity)}
}

// Lookup finds a method by slot ID, walking the inheritance chain.
// Returns nil if unresolved — the caller raises NoSuchMethodError.
func (vt *VTable) Lookup(slot int) Method {
	for v := vt; v != nil; v = v.parent {
		if slot >= 0 && slot < len(v.methods) {
			if m := v.methods[slot]; m != nil {
				return m
			}
		}
	}
	return nil
}

// LookupLocal finds a method in this vtable only, without inheritance.
func (vt *VTable) LookupLocal(slot int) Method {
	if slot >= 0 && slot < len(vt.methods) {
		return vt.methods[slot]
	}
	return nil
}

// AddMethod installs a method at slot, growing the table as needed.
func (vt *VTable) AddMethod(slot int, method Method) {
	if slot >= len(vt.methods) {
		grown := make([]Method, slot+1)
		copy(grown, vt.methods)
		vt.methods = grown
	}
	vt.methods[slot] = method
}

// RemoveMethod clears the method at slot.
func (vt *VTable) RemoveMethod(slot int) {
	if slot >= 0 && slot < len(vt.methods) {
		vt.methods[slot] = nil
	}
}

// HasMethod reports whether this vtable (not its parents) has slot bound.
func (vt *VTable) HasMethod(slot int) bool {
	return vt.LookupLocal(slot) != nil
}

func (vt *VTable) Parent() *VTable             { return vt.parent }
func (vt *VTable) SetParent(parent *VTable)    { vt.parent = parent }
func (vt *VTable) Class() *ClassDescriptor     { return vt.class }
func (vt *VTable) MethodCount() int            { return len(vt.methods) }

// LocalMethods returns the slot -> method map for entries defined
// directly in this vtable (not inherited).
func (vt *VTable) LocalMethods() map[int]Method {
	result := make(map[int]Method)
	for i, m := range vt.methods {
		if m != nil {
			result[i] = m
		}
	}
	return result
}
