package magicring

import (
	"fmt"
	"log/slog"
	"reflect"
	"unsafe"
)

// MultiRing is the struct-of-arrays variant (spec.md §4.4): one
// logical record of type T is decomposed into one C3 ring per field,
// all sharing the same actual element count, so logical index i
// addresses the i-th record coherently across every field.
//
// T's fields are discovered via reflection at Create/Open time rather
// than a compile-time code generator, since this package has no build
// step to hang one off; see DESIGN.md's Open Question 5.
type MultiRing[T any, H any] struct {
	name   string
	length uint64
	fields []*fieldRing[H]
	index  map[string]int
	logger *slog.Logger
}

// fieldRing is one sub-ring of a MultiRing: the same count/head/tail
// arithmetic as Ring, operating on a byte stride of elemSize instead
// of a compile-time T, since the field type is only known at runtime.
type fieldRing[H any] struct {
	name      string
	fieldName string
	ftype     reflect.Type
	elemSize  uint64
	length    uint64

	mapping  *Mapping
	hdr      *header[H]
	primary  []byte
	combined []byte
}

func newFieldRing[H any](name, fieldName string, ftype reflect.Type, d Descriptor, m *Mapping) *fieldRing[H] {
	return &fieldRing[H]{
		name:      m.Name(),
		fieldName: fieldName,
		ftype:     ftype,
		elemSize:  d.ElementSize,
		length:    d.ActualLen,
		mapping:   m,
		hdr:       (*header[H])(unsafe.Pointer(&m.Header[0])),
		primary:   m.Primary,
		combined:  m.Combined,
	}
}

func (f *fieldRing[H]) reset() {
	f.hdr.Count, f.hdr.Head, f.hdr.Tail = 0, 0, 0
}

func (f *fieldRing[H]) advance(n uint64) {
	f.hdr.Count += n
	f.hdr.Head = f.hdr.Count % (2 * f.length)
	if f.hdr.Count > f.length {
		f.hdr.Tail = modIndex(f.hdr.Head, f.length, 2*f.length)
	}
}

// beforeTail mirrors Ring.beforeTail: p is a true, unbounded logical
// position, compared against Count-Len directly rather than against
// the stored Tail (reduced mod 2*Len), which cannot tell apart two
// positions an exact multiple of Len apart.
func (f *fieldRing[H]) beforeTail(p uint64) bool {
	if f.hdr.Count <= f.length {
		return false
	}
	trueTail := f.hdr.Count - f.length
	return p < trueTail
}

func (f *fieldRing[H]) valueAt(i uint64) (reflect.Value, error) {
	if i >= f.hdr.Count {
		return reflect.Value{}, newError("valueAtInField", f.name, KindIndexOutOfRange, nil)
	}
	off := (i % f.length) * f.elemSize
	return reflect.NewAt(f.ftype, unsafe.Pointer(&f.primary[off])).Elem(), nil
}

func (f *fieldRing[H]) push(v reflect.Value) {
	off := (f.hdr.Count % f.length) * f.elemSize
	reflect.NewAt(f.ftype, unsafe.Pointer(&f.primary[off])).Elem().Set(v)
	f.advance(1)
}

func (f *fieldRing[H]) pushValues(vs reflect.Value) error {
	n := uint64(vs.Len())
	if n == 0 {
		return nil
	}
	if n > f.length {
		return newError("pushValuesField", f.name, KindIndexOutOfRange, fmt.Errorf("%d values exceeds capacity %d", n, f.length))
	}
	start := (f.hdr.Head % f.length) * f.elemSize
	for k := uint64(0); k < n; k++ {
		dst := reflect.NewAt(f.ftype, unsafe.Pointer(&f.combined[start+k*f.elemSize])).Elem()
		dst.Set(vs.Index(int(k)))
	}
	f.advance(n)
	return nil
}

func (f *fieldRing[H]) sliceBytes(start, stop uint64) ([]byte, error) {
	if start > stop {
		return nil, newError("sliceField", f.name, KindIndexOutOfRange, fmt.Errorf("start %d > stop %d", start, stop))
	}
	n := stop - start
	if n > f.length {
		return nil, newError("sliceField", f.name, KindIndexOutOfRange, fmt.Errorf("window of %d exceeds capacity %d", n, f.length))
	}
	if f.beforeTail(start) {
		return nil, newError("sliceField", f.name, KindWindowCrossesTail, fmt.Errorf("start %d behind tail %d", start, f.hdr.Tail))
	}
	off := (start % f.length) * f.elemSize
	return f.combined[off : off+n*f.elemSize], nil
}

func (f *fieldRing[H]) sliceFromTailBytes(k uint64) ([]byte, error) {
	if k > f.length {
		return nil, newError("sliceFieldFromTail", f.name, KindIndexOutOfRange, nil)
	}
	off := (f.hdr.Tail % f.length) * f.elemSize
	return f.combined[off : off+k*f.elemSize], nil
}

func (f *fieldRing[H]) sliceToHeadBytes(k uint64) ([]byte, error) {
	if k > f.hdr.Count || k > f.length {
		return nil, newError("sliceFieldToHead", f.name, KindIndexOutOfRange, nil)
	}
	idx := modIndex(f.hdr.Head, k, 2*f.length) % f.length
	off := idx * f.elemSize
	return f.combined[off : off+k*f.elemSize], nil
}

// decomposedField is one exported field of the record type T, as
// discovered by reflection.
type decomposedField struct {
	Name string
	Type reflect.Type
}

func decomposeFields(t reflect.Type) ([]decomposedField, error) {
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("record type must be a struct, got %v", t)
	}
	fields := make([]decomposedField, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		fields = append(fields, decomposedField{Name: sf.Name, Type: sf.Type})
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("record type %v has no exported fields", t)
	}
	return fields, nil
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}

// syncedElementCount implements spec.md §4.4's allocation strategy:
// the least common multiple, across fields, of granularity/gcd(granularity,
// sizeof(field)), rounded up to cover the caller's requested length.
func syncedElementCount(granularity uint64, fields []decomposedField, requested uint64) uint64 {
	m := uint64(1)
	for _, f := range fields {
		sz := uint64(f.Type.Size())
		if sz == 0 {
			continue
		}
		r := granularity / gcd(granularity, sz)
		m = lcm(m, r)
	}
	if requested <= m {
		return m
	}
	q := (requested + m - 1) / m
	return m * q
}

// CreateMulti allocates a new struct-of-arrays ring over record type
// T: one C3 sub-ring per exported field of T, named "<name>-<field>",
// all sized to the synchronized element count derived from T's field
// sizes and the platform's allocation granularity.
func CreateMulti[T any, H any](name string, length uint64, opts ...Option) (*MultiRing[T, H], error) {
	const op = "create"
	if length == 0 {
		return nil, newError(op, name, KindUnexpected, fmt.Errorf("length must be nonzero"))
	}
	o := resolveOptions(opts)

	var zero T
	fields, err := decomposeFields(reflect.TypeOf(zero))
	if err != nil {
		return nil, newError(op, name, KindUnexpected, err)
	}

	granularity := pageAlignmentUnit()
	shared := syncedElementCount(granularity, fields, length)
	headerSize := uint64(unsafe.Sizeof(header[H]{}))

	mr := &MultiRing[T, H]{name: name, length: shared, logger: o.logger, index: make(map[string]int, len(fields))}
	for i, fld := range fields {
		subName := fmt.Sprintf("%s-%s", name, fld.Name)
		desc := Compute(uint64(fld.Type.Size()), shared, headerSize)
		m, err := o.mapper.Create(subName, desc)
		if err != nil {
			mr.closeFields(i)
			return nil, err
		}
		fr := newFieldRing[H](subName, fld.Name, fld.Type, desc, m)
		fr.reset()
		mr.fields = append(mr.fields, fr)
		mr.index[fld.Name] = i
	}
	mr.logger.Info("magicring: multiring created", "name", name, "fields", len(fields), "length", shared)
	return mr, nil
}

// OpenMulti attaches to an existing struct-of-arrays ring. length and
// T must match the values CreateMulti was called with.
func OpenMulti[T any, H any](name string, length uint64, writable bool, opts ...Option) (*MultiRing[T, H], error) {
	const op = "open"
	if length == 0 {
		return nil, newError(op, name, KindUnexpected, fmt.Errorf("length must be nonzero"))
	}
	o := resolveOptions(opts)

	var zero T
	fields, err := decomposeFields(reflect.TypeOf(zero))
	if err != nil {
		return nil, newError(op, name, KindUnexpected, err)
	}

	granularity := pageAlignmentUnit()
	shared := syncedElementCount(granularity, fields, length)
	headerSize := uint64(unsafe.Sizeof(header[H]{}))

	mr := &MultiRing[T, H]{name: name, length: shared, logger: o.logger, index: make(map[string]int, len(fields))}
	for i, fld := range fields {
		subName := fmt.Sprintf("%s-%s", name, fld.Name)
		desc := Compute(uint64(fld.Type.Size()), shared, headerSize)
		m, err := o.mapper.Open(subName, desc, writable)
		if err != nil {
			mr.closeFields(i)
			return nil, err
		}
		fr := newFieldRing[H](subName, fld.Name, fld.Type, desc, m)
		mr.fields = append(mr.fields, fr)
		mr.index[fld.Name] = i
	}
	mr.logger.Info("magicring: multiring opened", "name", name, "fields", len(fields), "length", shared)
	return mr, nil
}

func (mr *MultiRing[T, H]) closeFields(n int) error {
	var firstErr error
	for i := 0; i < n && i < len(mr.fields); i++ {
		if err := mr.fields[i].mapping.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every sub-ring.
func (mr *MultiRing[T, H]) Close() error {
	err := mr.closeFields(len(mr.fields))
	mr.logger.Info("magicring: multiring closed", "name", mr.name)
	return err
}

// Name returns the base name passed to CreateMulti/OpenMulti.
func (mr *MultiRing[T, H]) Name() string { return mr.name }

// Len returns the synchronized actual element count shared by every
// sub-ring.
func (mr *MultiRing[T, H]) Len() uint64 { return mr.length }

// Fields returns the record's field names in declaration order.
func (mr *MultiRing[T, H]) Fields() []string {
	names := make([]string, len(mr.fields))
	for i, f := range mr.fields {
		names[i] = f.fieldName
	}
	return names
}

func (mr *MultiRing[T, H]) field(name string) (*fieldRing[H], error) {
	i, ok := mr.index[name]
	if !ok {
		return nil, newError("field", mr.name, KindUnexpected, fmt.Errorf("unknown field %q", name))
	}
	return mr.fields[i], nil
}

// PushField writes v, whose dynamic type must be exactly field's
// declared type, to that field's sub-ring alone.
func (mr *MultiRing[T, H]) PushField(field string, v any) error {
	f, err := mr.field(field)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(v)
	if rv.Type() != f.ftype {
		return newError("pushField", mr.name, KindUnexpected, fmt.Errorf("field %q expects %s, got %s", field, f.ftype, rv.Type()))
	}
	f.push(rv)
	return nil
}

// PushValuesField writes vs, a slice whose element type must match
// field's declared type, contiguously into that field's sub-ring.
func (mr *MultiRing[T, H]) PushValuesField(field string, vs any) error {
	f, err := mr.field(field)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(vs)
	if rv.Kind() != reflect.Slice || rv.Type().Elem() != f.ftype {
		return newError("pushValuesField", mr.name, KindUnexpected, fmt.Errorf("field %q expects []%s", field, f.ftype))
	}
	return f.pushValues(rv)
}

// ValueAtInField returns the element at logical position i from a
// single field's sub-ring.
func (mr *MultiRing[T, H]) ValueAtInField(field string, i uint64) (any, error) {
	f, err := mr.field(field)
	if err != nil {
		return nil, err
	}
	rv, err := f.valueAt(i)
	if err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}

// SliceField returns the window [start, stop) of a single field's
// sub-ring, as an any boxing a []U where U is that field's type.
func (mr *MultiRing[T, H]) SliceField(field string, start, stop uint64) (any, error) {
	f, err := mr.field(field)
	if err != nil {
		return nil, err
	}
	b, err := f.sliceBytes(start, stop)
	if err != nil {
		return nil, err
	}
	return bytesToTypedSlice(b, f.ftype), nil
}

// SliceFieldFromTail returns the k oldest still-valid elements of a
// single field's sub-ring.
func (mr *MultiRing[T, H]) SliceFieldFromTail(field string, k uint64) (any, error) {
	f, err := mr.field(field)
	if err != nil {
		return nil, err
	}
	b, err := f.sliceFromTailBytes(k)
	if err != nil {
		return nil, err
	}
	return bytesToTypedSlice(b, f.ftype), nil
}

// SliceFieldToHead returns the k most recently written elements of a
// single field's sub-ring.
func (mr *MultiRing[T, H]) SliceFieldToHead(field string, k uint64) (any, error) {
	f, err := mr.field(field)
	if err != nil {
		return nil, err
	}
	b, err := f.sliceToHeadBytes(k)
	if err != nil {
		return nil, err
	}
	return bytesToTypedSlice(b, f.ftype), nil
}

// Pushed is the per-field resulting count from a whole-record Push.
type Pushed struct {
	Fields map[string]uint64
}

// Push decomposes rec into its fields and pushes each onto its
// sub-ring, advancing every sub-ring's count by exactly 1.
func (mr *MultiRing[T, H]) Push(rec T) Pushed {
	rv := reflect.ValueOf(rec)
	pushed := Pushed{Fields: make(map[string]uint64, len(mr.fields))}
	for _, f := range mr.fields {
		f.push(rv.FieldByName(f.fieldName))
		pushed.Fields[f.fieldName] = f.hdr.Count
	}
	return pushed
}

// PushValues pushes each record in recs in order.
func (mr *MultiRing[T, H]) PushValues(recs []T) Pushed {
	var last Pushed
	for _, rec := range recs {
		last = mr.Push(rec)
	}
	return last
}

// Slice is a columnar window: one contiguous run per field, keyed by
// field name, each an any boxing a []U for that field's type U.
type Slice map[string]any

// PushSlice pushes each field's column in cols onto its sub-ring via
// the bulk contiguous path, the efficient columnar alternative to
// calling Push once per record.
func (mr *MultiRing[T, H]) PushSlice(cols Slice) error {
	for _, f := range mr.fields {
		v, ok := cols[f.fieldName]
		if !ok {
			continue
		}
		if err := mr.PushValuesField(f.fieldName, v); err != nil {
			return err
		}
	}
	return nil
}

// Slice returns the window [start, stop) across every field.
func (mr *MultiRing[T, H]) Slice(start, stop uint64) (Slice, error) {
	out := make(Slice, len(mr.fields))
	for _, f := range mr.fields {
		b, err := f.sliceBytes(start, stop)
		if err != nil {
			return nil, err
		}
		out[f.fieldName] = bytesToTypedSlice(b, f.ftype)
	}
	return out, nil
}

// SliceFromTail returns the k oldest still-valid records across every
// field.
func (mr *MultiRing[T, H]) SliceFromTail(k uint64) (Slice, error) {
	out := make(Slice, len(mr.fields))
	for _, f := range mr.fields {
		b, err := f.sliceFromTailBytes(k)
		if err != nil {
			return nil, err
		}
		out[f.fieldName] = bytesToTypedSlice(b, f.ftype)
	}
	return out, nil
}

// SliceToHead returns the k most recently written records across
// every field.
func (mr *MultiRing[T, H]) SliceToHead(k uint64) (Slice, error) {
	out := make(Slice, len(mr.fields))
	for _, f := range mr.fields {
		b, err := f.sliceToHeadBytes(k)
		if err != nil {
			return nil, err
		}
		out[f.fieldName] = bytesToTypedSlice(b, f.ftype)
	}
	return out, nil
}

// bytesToTypedSlice reinterprets a raw byte window as a []U for the
// given reflect.Type, via reflect.ArrayOf rather than the deprecated
// reflect.SliceHeader construction.
func bytesToTypedSlice(b []byte, t reflect.Type) any {
	sz := int(t.Size())
	if len(b) == 0 || sz == 0 {
		return reflect.MakeSlice(reflect.SliceOf(t), 0, 0).Interface()
	}
	n := len(b) / sz
	arrType := reflect.ArrayOf(n, t)
	arrPtr := reflect.NewAt(arrType, unsafe.Pointer(&b[0]))
	return arrPtr.Elem().Slice(0, n).Interface()
}
