package core

import "testing"

func TestValueCoercion(t *testing.T) {
	f := Float(3.5)
	if v, ok := f.AsFloat(); !ok || v != 3.5 {
		t.Fatalf("AsFloat() = %v, %v", v, ok)
	}
	if v, ok := f.AsInt(); !ok || v != 3 {
		t.Fatalf("Float.AsInt() = %v, %v, want 3", v, ok)
	}

	b := Bool(true)
	if v, ok := b.AsFloat(); !ok || v != 1 {
		t.Fatalf("Bool.AsFloat() = %v, %v, want 1", v, ok)
	}

	s := String("hello")
	if _, ok := s.AsFloat(); ok {
		t.Fatal("String.AsFloat() should not coerce")
	}
	if v, ok := s.AsString(); !ok || v != "hello" {
		t.Fatalf("AsString() = %v, %v", v, ok)
	}
}

func TestValueEqual(t *testing.T) {
	if !Integer(5).Equal(Integer(5)) {
		t.Fatal("Integer(5) should equal Integer(5)")
	}
	if Integer(5).Equal(Float(5)) {
		t.Fatal("Integer(5) should not equal Float(5): different kinds")
	}
	if !Null.Equal(Value{}) {
		t.Fatal("Null should equal the zero Value")
	}
}

func TestValueNull(t *testing.T) {
	if !Null.IsNull() {
		t.Fatal("Null.IsNull() should be true")
	}
	if Float(0).IsNull() {
		t.Fatal("Float(0) is not Null")
	}
}
