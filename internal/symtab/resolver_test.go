package symtab

import "testing"

func strongSym(size uint64) Symbol {
	return Symbol{Kind: KindDefined, Binding: BindGlobal, Size: size}
}

func weakSym(size uint64) Symbol {
	return Symbol{Kind: KindDefined, Binding: BindWeak, Size: size}
}

func tentativeSym(size uint64, align uint8) Symbol {
	return Symbol{Kind: KindTentative, Binding: BindGlobal, Size: size, Align: align}
}

func undefSym() Symbol {
	return Symbol{Kind: KindUndefined, Binding: BindGlobal}
}

func ref(input, idx uint32) SymbolRef { return SymbolRef{InputID: input, SymIndex: idx} }

func TestResolverObserveFirstOccurrenceAlwaysWins(t *testing.T) {
	cases := []struct {
		name string
		sym  Symbol
		kind Kind
	}{
		{"strong", strongSym(4), KindDefined},
		{"weak", weakSym(4), KindDefined},
		{"tentative", tentativeSym(4, 2), KindTentative},
		{"undef", undefSym(), KindUndefined},
	}
	for _, c := range cases {
		r := NewResolver(nil, false)
		if err := r.Observe("x", c.sym, ref(1, 0)); err != nil {
			t.Fatalf("%s: Observe = %v", c.name, err)
		}
		g, ok := r.Table.Get("x")
		if !ok {
			t.Fatalf("%s: Global not created", c.name)
		}
		if g.Kind != c.kind {
			t.Errorf("%s: Kind = %v, want %v", c.name, g.Kind, c.kind)
		}
	}
}

func TestResolverObserveStrongStrongIsMultipleDefinitions(t *testing.T) {
	r := NewResolver(nil, false)
	if err := r.Observe("x", strongSym(4), ref(1, 0)); err != nil {
		t.Fatalf("first Observe: %v", err)
	}
	err := r.Observe("x", strongSym(4), ref(2, 0))
	if _, ok := err.(*MultipleDefinitionsError); !ok {
		t.Fatalf("second strong Observe = %v, want *MultipleDefinitionsError", err)
	}
}

func TestResolverObserveStrongBeatsWeakEitherOrder(t *testing.T) {
	r := NewResolver(nil, false)
	if err := r.Observe("x", weakSym(4), ref(1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := r.Observe("x", strongSym(4), ref(2, 0)); err != nil {
		t.Fatal(err)
	}
	g, _ := r.Table.Get("x")
	if g.Binding != BindGlobal || g.Def != ref(2, 0) {
		t.Errorf("strong over weak: got Binding=%v Def=%v, want BindGlobal/%v", g.Binding, g.Def, ref(2, 0))
	}

	r2 := NewResolver(nil, false)
	if err := r2.Observe("x", strongSym(4), ref(1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := r2.Observe("x", weakSym(4), ref(2, 0)); err != nil {
		t.Fatal(err)
	}
	g2, _ := r2.Table.Get("x")
	if g2.Def != ref(1, 0) {
		t.Errorf("weak arriving after strong must keep the strong def, got %v", g2.Def)
	}
}

func TestResolverObserveTentativeKeepsLargerSize(t *testing.T) {
	r := NewResolver(nil, false)
	if err := r.Observe("x", tentativeSym(4, 2), ref(1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := r.Observe("x", tentativeSym(16, 3), ref(2, 0)); err != nil {
		t.Fatal(err)
	}
	g, _ := r.Table.Get("x")
	if g.TentativeSize() != 16 || g.TentativeAlign() != 3 {
		t.Errorf("tentative merge: size=%d align=%d, want size=16 align=3", g.TentativeSize(), g.TentativeAlign())
	}
	if g.Def != ref(2, 0) {
		t.Errorf("larger tentative should become the current Def, got %v", g.Def)
	}

	// A smaller tentative arriving afterward must not shrink the merged size.
	if err := r.Observe("x", tentativeSym(8, 2), ref(3, 0)); err != nil {
		t.Fatal(err)
	}
	if g.TentativeSize() != 16 {
		t.Errorf("smaller tentative shrank merged size to %d, want 16", g.TentativeSize())
	}
}

func TestResolverObserveStrongReplacesTentative(t *testing.T) {
	r := NewResolver(nil, false)
	if err := r.Observe("x", tentativeSym(4, 2), ref(1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := r.Observe("x", strongSym(0), ref(2, 0)); err != nil {
		t.Fatal(err)
	}
	g, _ := r.Table.Get("x")
	if g.Kind != KindDefined || g.Def != ref(2, 0) {
		t.Errorf("strong over tentative: got Kind=%v Def=%v", g.Kind, g.Def)
	}
}

func TestResolverObserveWeakOverTentativeKeepsTentative(t *testing.T) {
	r := NewResolver(nil, false)
	if err := r.Observe("x", tentativeSym(4, 2), ref(1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := r.Observe("x", weakSym(999), ref(2, 0)); err != nil {
		t.Fatal(err)
	}
	g, _ := r.Table.Get("x")
	if g.Kind != KindTentative || g.TentativeSize() != 4 {
		t.Errorf("weak over tentative must keep the tentative def untouched, got Kind=%v size=%d", g.Kind, g.TentativeSize())
	}
}

func TestResolverObserveUndefThenDefReplaces(t *testing.T) {
	r := NewResolver(nil, false)
	if err := r.Observe("x", undefSym(), ref(1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := r.Observe("x", strongSym(4), ref(2, 0)); err != nil {
		t.Fatal(err)
	}
	g, _ := r.Table.Get("x")
	if g.Kind != KindDefined || g.Def != ref(2, 0) {
		t.Errorf("def over undef: got Kind=%v Def=%v", g.Kind, g.Def)
	}
}

func TestResolverObserveDefThenUndefKeepsDef(t *testing.T) {
	r := NewResolver(nil, false)
	if err := r.Observe("x", strongSym(4), ref(1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := r.Observe("x", undefSym(), ref(2, 0)); err != nil {
		t.Fatal(err)
	}
	g, _ := r.Table.Get("x")
	if g.Kind != KindDefined || g.Def != ref(1, 0) {
		t.Errorf("undef arriving after a def must not replace it, got Kind=%v Def=%v", g.Kind, g.Def)
	}
}

func TestResolverUndefinedListsOnlyTrueUndefs(t *testing.T) {
	r := NewResolver(nil, true)
	if err := r.Observe("defined", strongSym(4), ref(1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := r.Observe("undef", undefSym(), ref(1, 1)); err != nil {
		t.Fatal(err)
	}
	if err := r.Observe("flat", undefSym(), ref(1, 2)); err != nil {
		t.Fatal(err)
	}
	r.MarkFlatLookup("flat")

	got := r.Undefined()
	if len(got) != 1 || got[0] != "undef" {
		t.Errorf("Undefined() = %v, want [undef]", got)
	}
}

func TestResolverBindDylibOnlyBindsUndefined(t *testing.T) {
	r := NewResolver(nil, false)
	if r.BindDylib("missing", 1, false) {
		t.Error("BindDylib on a name never observed should report false")
	}
	if err := r.Observe("x", undefSym(), ref(1, 0)); err != nil {
		t.Fatal(err)
	}
	if !r.BindDylib("x", 2, true) {
		t.Fatal("BindDylib on a genuinely undefined Global should succeed")
	}
	g, _ := r.Table.Get("x")
	if g.Dylib == nil || g.Dylib.Ordinal != 2 || !g.Dylib.Weak {
		t.Errorf("Dylib binding = %+v, want Ordinal=2 Weak=true", g.Dylib)
	}
	if r.BindDylib("x", 3, false) {
		t.Error("BindDylib on an already-bound Global should report false")
	}
}
