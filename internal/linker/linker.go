package linker

import (
	"fmt"
	"os"

	"github.com/moosichu/zld/internal/atom"
	"github.com/moosichu/zld/internal/format/elf"
	"github.com/moosichu/zld/internal/format/macho"
	"github.com/moosichu/zld/internal/format/wasm"
	"github.com/moosichu/zld/internal/input"
	"github.com/moosichu/zld/internal/layout"
	"github.com/moosichu/zld/internal/linkctx"
	"github.com/moosichu/zld/internal/reloc"
	"github.com/moosichu/zld/internal/stab"
	"github.com/moosichu/zld/internal/symtab"
	"github.com/moosichu/zld/types"
)

// objectInput pairs a parsed Object with the 1-based id every SymbolRef
// into it carries (spec.md §3 "Input").
type objectInput struct {
	id  uint32
	obj *input.Object
}

// Linker is spec.md §5's single mutable-state record: every stage below
// reads and writes through it rather than passing its own copies of the
// atom pool, symbol tables, or section/segment plan around.
type Linker struct {
	opts *Options
	log  *linkctx.Logger

	objects []objectInput
	byID    map[uint32]*input.Object
	nextID  uint32

	archives []*input.Archive
	pulled   map[*input.Archive]map[int]bool // archive -> member index -> pulled

	dylibs []*input.DylibStub

	resolver *symtab.Resolver
	pool     *atom.Pool
	synth    *atom.Synth
	locals   atom.LocalAllocator
	plan     *layout.Plan
	locs     *atom.LocationIndex

	arch     atom.Arch
	relArch  reloc.Arch
}

// New constructs a Linker ready to run the S1-S7 pipeline for opts.
func New(opts *Options, log *linkctx.Logger) *Linker {
	arch, relArch := atom.ArchX86_64, reloc.ArchX86_64
	if opts.Target.CPUArch == ArchAArch64 {
		arch, relArch = atom.ArchAArch64, reloc.ArchAArch64
	}
	return &Linker{
		opts:     opts,
		log:      log,
		byID:     make(map[uint32]*input.Object),
		pulled:   make(map[*input.Archive]map[int]bool),
		resolver: symtab.NewResolver(log, opts.AllowUndef),
		pool:     atom.NewPool(),
		arch:     arch,
		relArch:  relArch,
	}
}

// Link runs spec.md §2's seven stages in order and returns the final
// image bytes, ready to be written to opts.OutputPath().
func (l *Linker) Link() ([]byte, error) {
	l.synth = atom.NewSynth(l.pool, l.arch)
	l.plan = layout.NewPlan(l.pool)

	if err := l.loadInputs(); err != nil {
		return nil, err
	}
	if err := l.resolveSymbols(); err != nil {
		return nil, err
	}
	l.buildAtoms()
	l.createSyntheticAtoms()
	l.layoutSections()
	if err := l.writeRelocations(); err != nil {
		return nil, err
	}
	if err := l.checkEntrypoint(); err != nil {
		return nil, err
	}
	return l.finalize()
}

// checkEntrypoint enforces spec.md §7's MissingMainEntrypoint: an
// executable output whose Options.Entry name never resolved to a
// defined Global. Object/library output has no single entry symbol to
// check (spec.md §6 output_mode).
func (l *Linker) checkEntrypoint() error {
	if l.opts.OutputMode != OutputExe || l.opts.Entry == "" || l.opts.Target.ABI == "wasm" {
		return nil
	}
	gi, ok := l.resolver.Table.Index(l.opts.Entry)
	if !ok {
		return &MissingMainEntrypointError{Name: l.opts.Entry}
	}
	g := l.resolver.Table.At(gi)
	if g.Kind != symtab.KindDefined {
		return &MissingMainEntrypointError{Name: l.opts.Entry}
	}
	return nil
}

// --- S1: input ingestion ---------------------------------------------

func (l *Linker) loadInputs() error {
	for _, p := range l.opts.Positionals {
		data, err := os.ReadFile(p.Path)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Path, err)
		}
		in, err := input.Load(p.Path, data)
		if err != nil {
			if _, ok := err.(*input.NotObjectError); ok {
				l.log.Warnf("%s: unrecognized file type, skipping", p.Path)
				continue
			}
			return err
		}
		switch in.Kind {
		case input.KindObject:
			l.addObject(in.Object)
		case input.KindArchive:
			l.archives = append(l.archives, in.Archive)
			l.pulled[in.Archive] = make(map[int]bool)
		case input.KindDylibStub:
			l.dylibs = append(l.dylibs, in.Dylib)
		}
	}
	return nil
}

func (l *Linker) addObject(obj *input.Object) uint32 {
	l.nextID++
	id := l.nextID
	l.objects = append(l.objects, objectInput{id: id, obj: obj})
	l.byID[id] = obj
	return id
}

// --- S2: symbol resolution, with the S2<->S1 archive pull-in back edge --

func (l *Linker) resolveSymbols() error {
	for _, oi := range l.objects {
		l.observeObject(oi)
	}

	// Archive pull-in: spec.md §8's minimality property states a member is
	// pulled in iff it currently defines a name this link still has
	// undefined, re-checked to a fixed point since pulling one member
	// can itself create new undefined references another member
	// resolves.
	for {
		changed := false
		for ai, ar := range l.archives {
			for mi, m := range ar.Members {
				if l.pulled[l.archives[ai]][mi] {
					continue
				}
				if !l.memberSatisfiesUndefined(&m.Object) {
					continue
				}
				obj := m.Object
				l.addObject(&obj)
				l.observeObject(l.objects[len(l.objects)-1])
				l.pulled[l.archives[ai]][mi] = true
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	// Mach-O dylib binding (spec.md §4.2 step 3): every still-undefined
	// name gets one pass over every loaded dylib's export set.
	for ordinal, d := range l.dylibs {
		for _, name := range d.Symbols {
			l.resolver.BindDylib(name, ordinal+1, false)
		}
		for _, name := range d.WeakSymbols {
			l.resolver.BindDylib(name, ordinal+1, true)
		}
	}

	undefined := l.resolver.Undefined()
	if len(undefined) > 0 {
		if l.opts.AllowUndef {
			for _, name := range undefined {
				l.resolver.MarkFlatLookup(name)
			}
		} else {
			return &symtab.UndefinedSymbolError{Name: undefined[0]}
		}
	}
	return nil
}

func (l *Linker) observeObject(oi objectInput) error {
	for i, sym := range oi.obj.Symbols {
		if sym.Binding == symtab.BindLocal {
			continue
		}
		ref := symtab.SymbolRef{InputID: oi.id, SymIndex: uint32(i)}
		if err := l.resolver.Observe(sym.Name, sym, ref); err != nil {
			return err
		}
	}
	return nil
}

// memberSatisfiesUndefined reports whether obj defines (strongly or
// weakly) at least one name this link has not yet resolved, the pull-in
// test of spec.md §4.2/§8.
func (l *Linker) memberSatisfiesUndefined(obj *input.Object) bool {
	for _, sym := range obj.Symbols {
		if sym.Binding == symtab.BindLocal || sym.Kind == symtab.KindUndefined {
			continue
		}
		if g, ok := l.resolver.Table.Get(sym.Name); ok && g.Kind == symtab.KindUndefined {
			return true
		}
	}
	return false
}

// --- S3: atom building --------------------------------------------------

func (l *Linker) buildAtoms() {
	for _, oi := range l.objects {
		for secIdx := range oi.obj.Sections {
			l.buildSectionAtoms(oi, secIdx)
		}
	}
	l.buildTentativeAtoms()
}

func (l *Linker) buildSectionAtoms(oi objectInput, secIdx int) {
	sec := oi.obj.Sections[secIdx]

	var symbols []atom.SectionSymbol
	for i, sym := range oi.obj.Symbols {
		if sym.Kind != symtab.KindDefined || sym.SectionIndex != secIdx {
			continue
		}
		symbols = append(symbols, atom.SectionSymbol{
			Ref:      symtab.SymbolRef{InputID: oi.id, SymIndex: uint32(i)},
			Offset:   uint32(sym.Value),
			Size:     sym.Size,
			External: sym.Binding != symtab.BindLocal,
		})
	}

	src := atom.SectionSource{
		Data:          sec.Data,
		Zerofill:      sec.Zerofill,
		Subdividable:  sec.Subdividable,
		AlignLog2:     sec.AlignLog2,
		Symbols:       symbols,
		Relocs:        l.translateRelocs(oi, sec.Relocs),
		SectionSymRef: l.locals.Alloc(),
	}

	indexes := atom.Split(l.pool, oi.id, src)
	for _, idx := range indexes {
		a := l.pool.Get(idx)
		if l.atomOrphaned(a) {
			continue
		}
		l.plan.AddAtom(l.outputSection(sec.Name, a), idx)
	}
}

// translateRelocs rewrites every relocation whose target is an
// externally-visible symbol to the stable symtab.GlobalSymbolRef handle
// (spec.md §3's "side table local_sym_index -> global_index"), so S6
// resolves it via the resolver's winning definition regardless of which
// object's copy the atom carrying it came from. A relocation targeting a
// local symbol keeps its raw (input_id, sym_index) ref, resolved
// directly off the atom that claims it as Primary/Inner.
func (l *Linker) translateRelocs(oi objectInput, in []input.Relocation) []atom.Relocation {
	out := make([]atom.Relocation, len(in))
	for i, r := range in {
		target := symtab.SymbolRef{InputID: oi.id, SymIndex: r.Target.SymIndex}
		if int(r.Target.SymIndex) < len(oi.obj.Symbols) {
			sym := oi.obj.Symbols[r.Target.SymIndex]
			if sym.Binding != symtab.BindLocal {
				if gi, ok := l.resolver.Table.Index(sym.Name); ok {
					target = symtab.GlobalSymbolRef(gi)
				}
			}
		}
		out[i] = atom.Relocation{
			Offset: r.Offset, Length: r.Length, Target: target,
			Type: r.Type, Addend: r.Addend, PCRel: r.PCRel,
		}
	}
	return out
}

// atomOrphaned reports whether a carries only losing copies of
// externally-visible definitions (spec.md §8 scenario 4: "A's atom for
// foo is orphaned and omitted from output"). An atom with no externally
// visible symbol at all (pure local content) is never orphaned.
func (l *Linker) atomOrphaned(a *atom.Atom) bool {
	sawExternal := false
	check := func(ref symtab.SymbolRef) bool {
		obj, ok := l.byID[ref.InputID]
		if !ok || int(ref.SymIndex) >= len(obj.Symbols) {
			return false
		}
		sym := obj.Symbols[ref.SymIndex]
		if sym.Binding == symtab.BindLocal {
			return false
		}
		sawExternal = true
		g, ok := l.resolver.Table.Get(sym.Name)
		return ok && g.Def == ref
	}
	wins := check(a.Primary)
	for _, inner := range a.Inner {
		if check(inner.Ref) {
			wins = true
		}
	}
	return sawExternal && !wins
}

func (l *Linker) buildTentativeAtoms() {
	for i, g := range l.resolver.Table.Globals() {
		if g.Kind != symtab.KindTentative {
			continue
		}
		owner := symtab.GlobalSymbolRef(i)
		idx := l.synth.TentativeBSS(owner, g.TentativeSize(), g.TentativeAlign())
		l.plan.AddAtom(l.outputSection(bssSectionName(), l.pool.Get(idx)), idx)
	}
}

// --- S4: synthetic atom creation ---------------------------------------

func (l *Linker) createSyntheticAtoms() {
	l.synth.SetPreamble(l.synth.StubHelperPreamble(&l.locals))

	// Walk every already-placed atom's relocations and synthesize the
	// GOT/stub/TLV slot its type calls for (spec.md §4.4). Iterating the
	// pool directly (not the not-yet-built layout plan) is safe here
	// because Synth allocates new atoms without touching existing
	// indexes or any Plan.Section chain.
	n := l.pool.Len()
	for i := 1; i < n; i++ {
		a := l.pool.Get(atom.Index(i))
		for ri := range a.Relocs {
			l.maybeSynthesize(a, &a.Relocs[ri])
		}
	}

	// Newly synthesized atoms (GOT/stub/TLV/thunk slots) still need a
	// home in the layout plan.
	for i := n; i < l.pool.Len(); i++ {
		idx := atom.Index(i)
		a := l.pool.Get(idx)
		name := syntheticSectionName(a.Kind)
		l.plan.AddAtom(l.outputSection(name, a), idx)
	}
}

func (l *Linker) maybeSynthesize(a *atom.Atom, r *atom.Relocation) {
	t := reloc.Type(r.Type)
	switch l.relArch {
	case reloc.ArchX86_64:
		switch t {
		case reloc.X86_64_GOTPCREL, reloc.X86_64_GOT32:
			l.synth.GOTEntry(r.Target, &l.locals)
		case reloc.X86_64_REX_GOTPCRELX, reloc.X86_64_GOTPCRELX:
			if !l.tryGOTLoadPeephole(a, r) {
				l.synth.GOTEntry(r.Target, &l.locals)
			}
		case reloc.X86_64_PLT32:
			if l.dylibBound(r.Target) {
				l.synth.Stub(r.Target, &l.locals)
			}
		}
	case reloc.ArchAArch64:
		switch t {
		case reloc.AArch64_ADR_GOT_PAGE, reloc.AArch64_LD64_GOT_LO12_NC:
			l.synth.GOTEntry(r.Target, &l.locals)
		case reloc.AArch64_CALL26:
			if l.dylibBound(r.Target) {
				l.synth.Stub(r.Target, &l.locals)
			}
		}
	}
}

// dylibBound reports whether ref names a Global satisfied by an
// imported dylib symbol rather than a definition this link placed
// itself. This is the case spec.md §4.4 requires a lazy stub/GOT-through-bind
// for, as opposed to a direct local branch/load.
func (l *Linker) dylibBound(ref symtab.SymbolRef) bool {
	if !ref.IsGlobal() {
		return false
	}
	g := l.resolver.Table.At(int(ref.SymIndex))
	return g.Dylib != nil
}

// tryGOTLoadPeephole applies spec.md §4.6's ELF x86-64 GOTPCRELX rewrite:
// this linker models no ELF dynamic-symbol import path, so a
// REX_GOTPCRELX/GOTPCRELX fixup's target is always "local" in
// ClassifyPeephole's sense unless it came in bound to a dylib (Mach-O
// only; never true here, but checked for symmetry with maybeSynthesize's
// other cases). On success the relocation is rewritten in place to a
// direct PC32/abs32 fixup and the caller skips GOT-entry synthesis
// entirely.
func (l *Linker) tryGOTLoadPeephole(a *atom.Atom, r *atom.Relocation) bool {
	if l.opts.Target.OSTag == "darwin" {
		return false
	}
	local := !l.dylibBound(r.Target)
	kind := reloc.ClassifyPeephole(reloc.Type(r.Type), local)
	if kind == reloc.PeepholeNone {
		return false
	}
	applied := reloc.RewriteX86_64GOTLoad(a, *r)
	if applied == reloc.PeepholeNone {
		return false
	}
	r.Type = uint16(reloc.RewrittenType(applied))
	r.PCRel = applied == reloc.PeepholeMovToLea
	r.Addend = 0
	return true
}

// --- S5: section/segment layout, including the S6<->S5 thunk back edge --

func (l *Linker) layoutSections() {
	l.plan.PruneEmpty()
	l.plan.SortSections(l.segmentPrecedence)
	l.plan.GroupIntoSegments(l.segmentOf)
	l.plan.SizePass()
	base := l.pagezeroSize()
	l.plan.AllocateAddresses(base, 0x1000)
	l.locs = atom.BuildLocationIndex(l.pool, l.resolver.Table)

	if l.opts.Target.CPUArch == ArchAArch64 {
		l.insertThunks()
	}
}

// insertThunks runs spec.md §4.5 step 5: re-lay the plan out after every
// out-of-range aarch64 branch gets a thunk, since inserting atoms shifts
// every later address in the section.
func (l *Linker) insertThunks() {
	resolver := &reloc.Resolver{Locs: l.locs, Pool: l.pool, Synth: l.synth}
	isBranch := func(r atom.Relocation) bool {
		return reloc.Type(r.Type) == reloc.AArch64_CALL26 || reloc.Type(r.Type) == reloc.AArch64_JUMP26
	}
	resolveAddr := func(r atom.Relocation) (uint64, bool) {
		if addr, ok := resolver.Stub(r.Target); ok {
			return addr, ok
		}
		return resolver.Direct(r.Target)
	}
	insert := func(site atom.Index, r atom.Relocation) atom.Index {
		return l.synth.Thunk(symtab.SymbolRef{InputID: 0, SymIndex: uint32(site)}, r.Target, &l.locals)
	}
	for {
		changed := l.plan.InsertThunks(isBranch, insert, resolveAddr)
		if !changed {
			break
		}
		l.plan.SizePass()
		l.plan.AllocateAddresses(l.pagezeroSize(), 0x1000)
		l.locs = atom.BuildLocationIndex(l.pool, l.resolver.Table)
	}
}

func (l *Linker) pagezeroSize() uint64 {
	if l.opts.Target.OSTag == "darwin" && l.opts.OutputMode == OutputExe {
		if l.opts.PagezeroSize != 0 {
			return l.opts.PagezeroSize
		}
		return 1 << 32
	}
	return 0
}

// --- S6: relocation writer ------------------------------------------

func (l *Linker) writeRelocations() error {
	resolver := &reloc.Resolver{Locs: l.locs, Pool: l.pool, Synth: l.synth}
	n := l.pool.Len()
	for i := 1; i < n; i++ {
		a := l.pool.Get(atom.Index(i))
		if a.Zerofill || a.Payload == nil {
			continue
		}
		for _, r := range a.Relocs {
			if err := l.writeOneRelocation(resolver, a, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Linker) writeOneRelocation(resolver *reloc.Resolver, a *atom.Atom, r atom.Relocation) error {
	if r.Type == layout.ThunkRelocMarker {
		addr := resolver.Thunk(r.Addend)
		if l.opts.Target.CPUArch == ArchAArch64 {
			r.Type, r.Addend = uint16(reloc.AArch64_CALL26), 0
			reloc.WriteAArch64(a, r, addr, 0)
		}
		return nil
	}

	addr, ok := l.resolveTarget(resolver, r)
	if !ok {
		return &MismatchedCPUArchitectureError{} // unreachable once resolution/synthesis is complete; kept for symmetry with spec.md §7's closure invariant
	}

	switch l.relArch {
	case reloc.ArchX86_64:
		reloc.WriteX86_64(a, r, addr)
	case reloc.ArchAArch64:
		reloc.WriteAArch64(a, r, addr, ldrScaleFor(reloc.Type(r.Type)))
	}
	return nil
}

func (l *Linker) resolveTarget(resolver *reloc.Resolver, r atom.Relocation) (uint64, bool) {
	t := reloc.Type(r.Type)
	switch l.relArch {
	case reloc.ArchX86_64:
		switch t {
		case reloc.X86_64_GOTPCREL, reloc.X86_64_GOT32, reloc.X86_64_REX_GOTPCRELX, reloc.X86_64_GOTPCRELX:
			return resolver.GOT(r.Target)
		case reloc.X86_64_PLT32:
			if addr, ok := resolver.Stub(r.Target); ok {
				return addr, ok
			}
		}
	case reloc.ArchAArch64:
		switch t {
		case reloc.AArch64_ADR_GOT_PAGE, reloc.AArch64_LD64_GOT_LO12_NC:
			return resolver.GOT(r.Target)
		case reloc.AArch64_CALL26:
			if addr, ok := resolver.Stub(r.Target); ok {
				return addr, ok
			}
		}
	}
	return resolver.Direct(r.Target)
}

func ldrScaleFor(t reloc.Type) uint {
	if t == reloc.AArch64_LD64_GOT_LO12_NC {
		return 3
	}
	return 0
}

// --- S7: format-specific finalization -----------------------------------

func (l *Linker) finalize() ([]byte, error) {
	switch l.opts.Target.ABI {
	case "wasm":
		return l.finalizeWasm()
	}
	if l.opts.Target.OSTag == "darwin" {
		return l.finalizeMachO()
	}
	return l.finalizeELF()
}

func (l *Linker) finalizeELF() ([]byte, error) {
	machine := uint16(0x3e) // EM_X86_64
	if l.opts.Target.CPUArch == ArchAArch64 {
		machine = 0xb7 // EM_AARCH64
	}
	entryAddr, _ := l.locs.Address(l.pool, l.entryRef())
	w := &elf.Writer{
		Plan:     l.plan,
		Machine:  machine,
		Entry:    entryAddr,
		Resolver: &reloc.Resolver{Locs: l.locs, Pool: l.pool, Synth: l.synth},
	}
	return w.Write()
}

func (l *Linker) finalizeMachO() ([]byte, error) {
	cpu := types.CPUAmd64
	if l.opts.Target.CPUArch == ArchAArch64 {
		cpu = types.CPUArm64
	}
	var segs []macho.WriterSegment
	for i := range l.plan.Segments {
		seg := &l.plan.Segments[i]
		var secs []*layout.Section
		for _, si := range seg.SectionIndexes {
			secs = append(secs, &l.plan.Sections[si])
		}
		segs = append(segs, macho.WriterSegment{Seg: seg, Sections: secs})
	}
	entryAddr, _ := l.locs.Address(l.pool, l.entryRef())
	w := &macho.Writer{
		Plan:     l.plan,
		Segments: segs,
		Globals:  l.resolver.Table,
		Locs:     l.locs,
		CPU:      cpu,
		Exec:     l.opts.OutputMode == OutputExe,
		EntryOff: entryAddr,
		Stabs:    l.buildMachOStabs(),
	}
	for ordinal, d := range l.dylibs {
		w.Dylibs = append(w.Dylibs, macho.DylibLoad{Path: d.InstallName, Ordinal: ordinal + 1})
	}
	return w.Write()
}

// buildMachOStabs runs internal/stab over every Mach-O input object
// still part of this link, grounded on the teacher's DWARF()
// section-suffix idiom (spec.md §4.7): one N_SO/N_OSO/N_FUN group per
// object that carries DWARF info, skipped silently for any that don't.
func (l *Linker) buildMachOStabs() []stab.Entry {
	var all []stab.Entry
	for _, oi := range l.objects {
		if oi.obj.Format != input.FormatMachO {
			continue
		}
		secs := make([]stab.Section, len(oi.obj.Sections))
		for i, sec := range oi.obj.Sections {
			secs[i] = stab.Section{Name: sec.Name, Data: sec.Data}
		}

		var funcs []stab.FuncSym
		for i, sym := range oi.obj.Symbols {
			if sym.Binding == symtab.BindLocal || sym.Kind != symtab.KindDefined {
				continue
			}
			if sym.SectionIndex < 0 || sym.SectionIndex >= len(oi.obj.Sections) {
				continue
			}
			if !looksLikeCode(oi.obj.Sections[sym.SectionIndex].Name) {
				continue
			}
			ref := symtab.SymbolRef{InputID: oi.id, SymIndex: uint32(i)}
			addr, ok := l.locs.Address(l.pool, ref)
			if !ok {
				continue
			}
			funcs = append(funcs, stab.FuncSym{Name: sym.Name, Value: addr})
		}

		entries, err := stab.Build(oi.obj.Path, secs, funcs, fileMtime(oi.obj.Path))
		if err != nil || len(entries) == 0 {
			continue
		}
		all = append(all, entries...)
	}
	return all
}

func fileMtime(path string) uint32 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return uint32(info.ModTime().Unix())
}

func (l *Linker) finalizeWasm() ([]byte, error) {
	mod := &wasm.Module{Memory: [2]uint32{1, 0}}
	for i := range l.plan.Sections {
		sec := &l.plan.Sections[i]
		switch sec.Name {
		case "code":
			sec.Chain.Walk(l.pool, func(_ atom.Index, a *atom.Atom) bool {
				mod.Code = append(mod.Code, a.Payload)
				mod.FuncTypeIdx = append(mod.FuncTypeIdx, 0)
				return true
			})
		case "data":
			sec.Chain.Walk(l.pool, func(_ atom.Index, a *atom.Atom) bool {
				mod.Data = append(mod.Data, wasm.DataSegment{Data: a.Payload})
				return true
			})
		}
	}
	w := &wasm.Writer{Module: mod, Plan: l.plan}
	return w.Write(), nil
}

func (l *Linker) entryRef() symtab.SymbolRef {
	if gi, ok := l.resolver.Table.Index(l.opts.Entry); ok {
		return symtab.GlobalSymbolRef(gi)
	}
	return symtab.SymbolRef{}
}

// --- output-section naming --------------------------------------------

// outputSection resolves (or creates) the Plan section an atom with
// input section name belongs in, per the format-specific precedence
// table spec.md §4.5 step 2 describes.
func (l *Linker) outputSection(name string, a *atom.Atom) int {
	seg, canon, prec := l.classifySection(name, a)
	return l.plan.Section(canon, seg, prec)
}

func (l *Linker) classifySection(name string, a *atom.Atom) (segment, canon string, precedence int) {
	if l.opts.Target.ABI == "wasm" {
		switch {
		case a.Zerofill, name == ".bss":
			return "", "data", 1
		case a.Kind == atom.KindRegular && looksLikeCode(name):
			return "", "code", 0
		default:
			return "", "data", 1
		}
	}
	if l.opts.Target.OSTag == "darwin" {
		switch a.Kind {
		case atom.KindGOTEntry:
			return "__DATA_CONST", "__got", 2
		case atom.KindStub:
			return "__TEXT", "__stubs", 3
		case atom.KindStubHelper, atom.KindStubHelperPreamble:
			return "__TEXT", "__stub_helper", 4
		case atom.KindLazyPointer:
			return "__DATA", "__la_symbol_ptr", 5
		case atom.KindTLVPointer:
			return "__DATA", "__thread_ptrs", 6
		case atom.KindThunk:
			return "__TEXT", "__text", 0
		case atom.KindTentativeBSS:
			return "__DATA", "__bss", 10
		case atom.KindHeaderPad:
			return "__TEXT", "__text", 0
		}
		if a.Zerofill {
			return "__DATA", "__bss", 10
		}
		if looksLikeCode(name) {
			return "__TEXT", "__text", 0
		}
		if looksLikeRodata(name) {
			return "__TEXT", "__const", 1
		}
		return "__DATA", "__data", 7
	}

	// ELF.
	switch a.Kind {
	case atom.KindGOTEntry:
		return "", ".got", 4
	case atom.KindStub:
		return "", ".plt", 2
	case atom.KindThunk:
		return "", ".text", 0
	case atom.KindTentativeBSS:
		return "", ".bss", 8
	}
	if a.Zerofill {
		return "", ".bss", 8
	}
	if looksLikeCode(name) {
		return "", ".text", 0
	}
	if looksLikeRodata(name) {
		return "", ".rodata", 1
	}
	return "", ".data", 6
}

func looksLikeCode(name string) bool {
	return name == ".text" || name == "__text" || hasPrefix(name, ".text.") || hasPrefix(name, "__text.")
}

func looksLikeRodata(name string) bool {
	return name == ".rodata" || name == "__const" || name == "__cstring" || hasPrefix(name, ".rodata.")
}

func hasPrefix(s, p string) bool { return len(s) >= len(p) && s[:len(p)] == p }

func bssSectionName() string { return ".bss" }

func syntheticSectionName(k atom.Kind) string {
	switch k {
	case atom.KindGOTEntry:
		return ".got"
	case atom.KindStub:
		return ".plt"
	case atom.KindLazyPointer:
		return "__la_symbol_ptr"
	case atom.KindStubHelper, atom.KindStubHelperPreamble:
		return "__stub_helper"
	case atom.KindTLVPointer:
		return "__thread_ptrs"
	}
	return ".data"
}

// segmentPrecedence/segmentOf close over the target format so
// layout.Plan stays format-agnostic (spec.md §4.5 step 2/3).
func (l *Linker) segmentPrecedence(segment string) int {
	order := []string{"__PAGEZERO", "__TEXT", "__DATA_CONST", "__DATA", "__LINKEDIT", ""}
	for i, s := range order {
		if s == segment {
			return i
		}
	}
	return len(order)
}

func (l *Linker) segmentOf(sectionSegment string) string {
	if sectionSegment == "" {
		return "" // ELF/Wasm have no Mach-O-style named segments
	}
	return sectionSegment
}
