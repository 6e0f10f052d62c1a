package vm

import "sync/atomic"

// MarkState is the per-object liveness tag written by the collector.
// Regular objects carry the rotating cycle value once marked; Root and
// Eternal objects are never swept regardless of the current cycle.
type MarkState int32

const (
	// MarkFree means the object has not been visited by the current
	// collection cycle. An object found in this state at sweep time
	// is unreachable and is destroyed.
	MarkFree MarkState = 0

	// MarkRoot objects are pinned: explicitly protected local/global
	// references that the collector must never sweep, but which are
	// still scanned for outgoing pointers like any other object.
	MarkRoot MarkState = -1

	// MarkEternal objects live for the lifetime of the process: class
	// descriptors, the metaclass, interned string literals. Never
	// scanned for sweep, never unmarked between cycles.
	MarkEternal MarkState = -2

	// MarkCollected marks an object a sweep found unreachable, between
	// its removal from the tracked set and the finalizer goroutine
	// running its finalize hook.
	MarkCollected MarkState = -3

	// MarkFinalized marks an object whose finalize hook has run but
	// whose storage has not yet been reclaimed.
	MarkFinalized MarkState = -4

	// MarkDestroyed marks an object whose storage has been reclaimed.
	// Reads of its fields past this point are poisoned: the accounting
	// (heap usage, monitor, class counters) that referenced it is gone.
	MarkDestroyed MarkState = -5
)

// NumInlineFields is the number of object-pointer fields stored directly
// in the Object struct before the collector has to chase the overflow
// slice. Most generated classes have a handful of reference fields;
// this keeps the common case allocation-free beyond the Object itself.
const NumInlineFields = 4

// Header is the fixed prefix every heap object carries ahead of its
// class's generated field layout.
type Header struct {
	class   *ClassDescriptor
	mark    atomic.Int32
	vtable  *VTable
	monitor atomic.Pointer[Monitor]
}

// Object is a heap-allocated instance. Only pointer-valued fields are
// modeled here: primitive (non-pointer) fields belong to the generated
// native struct layout that codegen produces for each class and are
// opaque to the collector, which only needs to chase references.
type Object struct {
	Header

	field0 *Object
	field1 *Object
	field2 *Object
	field3 *Object

	overflow []*Object
}

// NewObject allocates an Object with numFields pointer slots, all nil,
// bound to desc's vtable. This does not register the object with any
// heap or root set; callers normally go through Heap.Alloc instead.
func NewObject(desc *ClassDescriptor, numFields int) *Object {
	obj := &Object{}
	obj.class = desc
	if desc != nil {
		obj.vtable = desc.VTable
	}
	if numFields > NumInlineFields {
		obj.overflow = make([]*Object, numFields-NumInlineFields)
	}
	return obj
}

// Class returns the object's class descriptor.
func (obj *Object) Class() *ClassDescriptor {
	return obj.class
}

// SetClass rebinds the object's class descriptor and vtable. Used only
// during bootstrap of the metaclass cycle, where an object's class must
// be patched in after both objects exist.
func (obj *Object) SetClass(desc *ClassDescriptor) {
	obj.class = desc
	if desc != nil {
		obj.vtable = desc.VTable
	}
}

// VTablePtr returns the object's method dispatch table.
func (obj *Object) VTablePtr() *VTable {
	return obj.vtable
}

// Mark returns the current mark state of the object.
func (obj *Object) Mark() MarkState {
	return MarkState(obj.mark.Load())
}

// SetMark stores a new mark state.
func (obj *Object) SetMark(m MarkState) {
	obj.mark.Store(int32(m))
}

// IsMarkedAt reports whether the object carries the given cycle value,
// or is one of the permanently-live states.
func (obj *Object) IsMarkedAt(cycle int32) bool {
	m := obj.mark.Load()
	return m == cycle || m == int32(MarkRoot) || m == int32(MarkEternal)
}

// IsEternal reports whether the object is permanently live.
func (obj *Object) IsEternal() bool {
	return obj.mark.Load() == int32(MarkEternal)
}

// IsRoot reports whether the object is explicitly pinned.
func (obj *Object) IsRoot() bool {
	return obj.mark.Load() == int32(MarkRoot)
}

// monitorFor lazily allocates this object's monitor on first use, so that
// the common object that is never synchronized on pays nothing for it.
func (obj *Object) monitorFor() *Monitor {
	if m := obj.monitor.Load(); m != nil {
		return m
	}
	m := newMonitor(obj)
	if obj.monitor.CompareAndSwap(nil, m) {
		return m
	}
	return obj.monitor.Load()
}

// NumFields returns the total number of pointer-valued fields.
func (obj *Object) NumFields() int {
	return NumInlineFields + len(obj.overflow)
}

// GetField returns the field at index. Panics out of range.
func (obj *Object) GetField(index int) *Object {
	switch index {
	case 0:
		return obj.field0
	case 1:
		return obj.field1
	case 2:
		return obj.field2
	case 3:
		return obj.field3
	default:
		return obj.overflow[index-NumInlineFields]
	}
}

// SetField sets the field at index. Panics out of range.
func (obj *Object) SetField(index int, value *Object) {
	switch index {
	case 0:
		obj.field0 = value
	case 1:
		obj.field1 = value
	case 2:
		obj.field2 = value
	case 3:
		obj.field3 = value
	default:
		obj.overflow[index-NumInlineFields] = value
	}
}

// ForEachField calls fn for every pointer field, including nil ones.
// Used by the collector's mark phase and by diagnostics; allocation-free.
func (obj *Object) ForEachField(fn func(index int, ref *Object)) {
	fn(0, obj.field0)
	fn(1, obj.field1)
	fn(2, obj.field2)
	fn(3, obj.field3)
	for i, v := range obj.overflow {
		fn(NumInlineFields+i, v)
	}
}

// ClassName returns the object's class name, or "?" if unbound.
func (obj *Object) ClassName() string {
	if obj.class == nil {
		return "?"
	}
	return obj.class.Name
}
