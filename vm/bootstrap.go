package vm

// BootstrapMetaclass creates the two descriptors every class hierarchy
// needs before anything else can be registered: an Object root class
// and the Metaclass descriptor that classes are themselves instances
// of. Every ClassDescriptor's Reify method binds it to a heap object
// of class Metaclass, permanently MarkEternal, the same way a language
// runtime represents "SomeClass class" as an actual first-class value.
func BootstrapMetaclass() (object, metaclass *ClassDescriptor) {
	object = NewClassDescriptor("Object", nil)
	metaclass = NewClassDescriptor("Metaclass", object)
	return object, metaclass
}

// Reify returns desc's identity as a heap Object of class Metaclass,
// allocating it on first use. Generated code needs this to answer
// "aClass class" or to pass a class around as an ordinary value.
func (desc *ClassDescriptor) Reify(ctx *ThreadContext, heap *Heap, metaclass *ClassDescriptor) (*Object, error) {
	if desc.asObject != nil {
		return desc.asObject, nil
	}
	obj, err := heap.Alloc(ctx, metaclass, MarkEternal)
	if err != nil {
		return nil, err
	}
	desc.asObject = obj
	return obj, nil
}
