package vm

import "testing"

func TestClassRegistryRegisterAndLookup(t *testing.T) {
	reg := NewClassRegistry()
	object := NewClassDescriptor("Object", nil)
	if err := reg.Register(object); err != nil {
		t.Fatalf("unexpected error registering Object: %v", err)
	}

	found := reg.Lookup("Object")
	if found != object {
		t.Fatalf("expected Lookup to return the registered descriptor")
	}
}

func TestClassRegistryRejectsNameCollision(t *testing.T) {
	reg := NewClassRegistry()
	a := NewClassDescriptor("Dup", nil)
	b := NewClassDescriptor("Dup", nil)

	if err := reg.Register(a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.Register(b); err == nil {
		t.Fatalf("expected an error registering a second distinct descriptor under the same name")
	}
}

func TestClassRegistryReregisterSameDescriptorIsNoop(t *testing.T) {
	reg := NewClassRegistry()
	a := NewClassDescriptor("Stable", nil)
	if err := reg.Register(a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.Register(a); err != nil {
		t.Fatalf("re-registering the same descriptor must not error: %v", err)
	}
}

func TestIsAssignableFromSubclass(t *testing.T) {
	reg := NewClassRegistry()
	object := NewClassDescriptor("Object", nil)
	animal := NewClassDescriptor("Animal", object)
	dog := NewClassDescriptor("Dog", animal)

	for _, c := range []*ClassDescriptor{object, animal, dog} {
		if err := reg.Register(c); err != nil {
			t.Fatalf("register %s: %v", c.Name, err)
		}
	}

	if !animal.IsAssignableFrom(dog) {
		t.Fatalf("expected Animal to be assignable from Dog")
	}
	if dog.IsAssignableFrom(animal) {
		t.Fatalf("did not expect Dog to be assignable from Animal")
	}
}

func TestIsAssignableFromInterface(t *testing.T) {
	reg := NewClassRegistry()
	object := NewClassDescriptor("Object", nil)
	comparable := NewClassDescriptor("Comparable", nil)
	num := NewClassDescriptor("Num", object)
	num.Interfaces = []*ClassDescriptor{comparable}

	for _, c := range []*ClassDescriptor{object, comparable, num} {
		if err := reg.Register(c); err != nil {
			t.Fatalf("register %s: %v", c.Name, err)
		}
	}

	if !comparable.IsAssignableFrom(num) {
		t.Fatalf("expected Comparable to be assignable from Num")
	}
	if num.DispatchFor(comparable) == nil {
		t.Fatalf("expected a dispatch cache entry for Num -> Comparable")
	}
}

func TestIsAssignableFromArrayCovariance(t *testing.T) {
	object := NewClassDescriptor("Object", nil)
	animal := NewClassDescriptor("Animal", object)
	dog := NewClassDescriptor("Dog", animal)
	fruit := NewClassDescriptor("Fruit", object)

	animalArray := &ClassDescriptor{Name: "Animal[]", ArrayDims: 1, ComponentType: animal}
	dogArray := &ClassDescriptor{Name: "Dog[]", ArrayDims: 1, ComponentType: dog}
	fruitArray := &ClassDescriptor{Name: "Fruit[]", ArrayDims: 1, ComponentType: fruit}

	if !animalArray.IsAssignableFrom(dogArray) {
		t.Fatalf("expected Animal[] to be assignable from Dog[], by component covariance")
	}
	if dogArray.IsAssignableFrom(animalArray) {
		t.Fatalf("did not expect Dog[] to be assignable from Animal[]")
	}
	if animalArray.IsAssignableFrom(fruitArray) {
		t.Fatalf("did not expect Animal[] to be assignable from Fruit[], unrelated components")
	}
	if animalArray.IsAssignableFrom(animal) {
		t.Fatalf("did not expect an array type to be assignable from a non-array")
	}
}

func TestClassVarStorage(t *testing.T) {
	object := NewClassDescriptor("Object", nil)
	counter := NewClassDescriptor("Counter", object)

	instance := NewObject(object, 0)
	counter.SetClassVar(0, instance)
	if counter.ClassVar(0) != instance {
		t.Fatalf("expected class variable to round-trip")
	}
	if counter.ClassVar(5) != nil {
		t.Fatalf("expected out-of-range class variable read to return nil")
	}
}

func TestSuperclassesAndDepth(t *testing.T) {
	object := NewClassDescriptor("Object", nil)
	animal := NewClassDescriptor("Animal", object)
	dog := NewClassDescriptor("Dog", animal)

	supers := dog.Superclasses()
	if len(supers) != 2 || supers[0] != animal || supers[1] != object {
		t.Fatalf("unexpected superclass chain: %v", supers)
	}
	if dog.Depth() != 2 {
		t.Fatalf("expected depth 2, got %d", dog.Depth())
	}
}
