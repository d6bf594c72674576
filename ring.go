// {{{ Copyright (c) Paul R. Tagliamonte <paultag@gmail.com> 2020-2021
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

package magicring

import (
	"fmt"
	"io"
	"log/slog"
	"unsafe"
)

// Ring is a single-producer magic ring buffer of T, with an in-band
// header extended by H. The zero value is not usable; construct one
// with Create or Open.
type Ring[T any, H any] struct {
	name    string
	desc    Descriptor
	mapping *Mapping
	logger  *slog.Logger

	hdr      *header[H]
	ring     []T // Primary reinterpreted as []T, length L
	combined []T // Combined reinterpreted as []T, length 2L
	length   uint64
}

// Option configures Create/Open.
type Option func(*ringOptions)

type ringOptions struct {
	mapper Mapper
	logger *slog.Logger
}

// WithMapper overrides the platform Mapper used instead of Default().
func WithMapper(m Mapper) Option {
	return func(o *ringOptions) { o.mapper = m }
}

// WithLogger attaches a *slog.Logger that Create/Open/Close report
// through; the default discards every record.
func WithLogger(l *slog.Logger) Option {
	return func(o *ringOptions) { o.logger = l }
}

func resolveOptions(opts []Option) *ringOptions {
	o := &ringOptions{
		mapper: Default(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// Create allocates a new ring named name holding length elements of T,
// with extension header H. length is rounded up the same way Compute
// rounds up; the actual capacity after rounding is Ring.Len.
func Create[T any, H any](name string, length uint64, opts ...Option) (*Ring[T, H], error) {
	const op = "create"
	o := resolveOptions(opts)

	var zero T
	elemSize := uint64(unsafe.Sizeof(zero))
	if elemSize == 0 || length == 0 {
		return nil, newError(op, name, KindUnexpected, fmt.Errorf("element size and length must be nonzero"))
	}
	headerSize := uint64(unsafe.Sizeof(header[H]{}))
	desc := Compute(elemSize, length, headerSize)

	m, err := o.mapper.Create(name, desc)
	if err != nil {
		return nil, err
	}
	r := newRingFromMapping[T, H](name, desc, m, o.logger)
	r.reset()
	r.logger.Info("magicring: created", "name", name, "length", r.length, "elementSize", elemSize)
	return r, nil
}

// Open attaches to an existing ring named name. length and the type
// parameters must match the values Create was called with, since they
// determine the layout Compute reproduces.
func Open[T any, H any](name string, length uint64, writable bool, opts ...Option) (*Ring[T, H], error) {
	const op = "open"
	o := resolveOptions(opts)

	var zero T
	elemSize := uint64(unsafe.Sizeof(zero))
	if elemSize == 0 || length == 0 {
		return nil, newError(op, name, KindUnexpected, fmt.Errorf("element size and length must be nonzero"))
	}
	headerSize := uint64(unsafe.Sizeof(header[H]{}))
	desc := Compute(elemSize, length, headerSize)

	m, err := o.mapper.Open(name, desc, writable)
	if err != nil {
		return nil, err
	}
	r := newRingFromMapping[T, H](name, desc, m, o.logger)
	r.logger.Info("magicring: opened", "name", name, "length", r.length, "writable", writable)
	return r, nil
}

func newRingFromMapping[T any, H any](name string, d Descriptor, m *Mapping, logger *slog.Logger) *Ring[T, H] {
	// m.Name() rather than the caller-supplied name: on the memfd
	// backend they differ (spec.md §9.1 / §6) — the mapper rewrites
	// the name to the /proc/<pid>/fd/<n> path a second process must
	// use to attach, and that is what Name() must report back.
	hdr := (*header[H])(unsafe.Pointer(&m.Header[0]))
	ringView := unsafe.Slice((*T)(unsafe.Pointer(&m.Primary[0])), d.ActualLen)
	combinedView := unsafe.Slice((*T)(unsafe.Pointer(&m.Combined[0])), 2*d.ActualLen)
	return &Ring[T, H]{
		name:     m.Name(),
		desc:     d,
		mapping:  m,
		logger:   logger,
		hdr:      hdr,
		ring:     ringView,
		combined: combinedView,
		length:   d.ActualLen,
	}
}

// Name returns the ring's backing-object name.
func (r *Ring[T, H]) Name() string { return r.name }

// Len returns the actual element capacity L, after Compute's rounding.
func (r *Ring[T, H]) Len() uint64 { return r.length }

// Descriptor returns the layout this ring was built from.
func (r *Ring[T, H]) Descriptor() Descriptor { return r.desc }

// Close tears down the underlying mapping.
func (r *Ring[T, H]) Close() error {
	if err := r.mapping.Close(); err != nil {
		return err
	}
	r.logger.Info("magicring: closed", "name", r.name)
	return nil
}

// Reset zeroes count/head/tail, discarding all data without unmapping.
func (r *Ring[T, H]) Reset() { r.reset() }

func (r *Ring[T, H]) reset() {
	r.hdr.Count = 0
	r.hdr.Head = 0
	r.hdr.Tail = 0
}

// State returns a copy of the current {count, head, tail}.
func (r *Ring[T, H]) State() State { return r.hdr.State }

// Header returns a pointer to the caller's extension header, live over
// the mapping: writes through it are visible to every other attached
// process immediately.
func (r *Ring[T, H]) Header() *H { return &r.hdr.Extra }

// ValueAt returns the element stored for logical position i (0 based,
// growing without bound). It fails with KindIndexOutOfRange only when
// i has not been written yet (i >= count); a position that has already
// been overwritten is not detected and yields the newer element now
// held in its slot.
func (r *Ring[T, H]) ValueAt(i uint64) (T, error) {
	var zero T
	if i >= r.hdr.Count {
		return zero, newError("valueAt", r.name, KindIndexOutOfRange, nil)
	}
	return r.ring[i%r.length], nil
}

// Push writes v at the current head and advances count/head/tail. It
// never fails: the oldest unread element is silently overwritten once
// count exceeds Len, per the ring's single-producer overwrite
// semantics.
func (r *Ring[T, H]) Push(v T) {
	idx := r.hdr.Count % r.length
	r.ring[idx] = v
	r.advance(1)
}

// PushValues writes len(vs) elements starting at head as one
// contiguous run via the combined (primary+mirror) view, so the write
// itself never needs to wrap. len(vs) must not exceed Len.
func (r *Ring[T, H]) PushValues(vs []T) error {
	n := uint64(len(vs))
	if n == 0 {
		return nil
	}
	if n > r.length {
		return newError("pushValues", r.name, KindIndexOutOfRange, fmt.Errorf("%d values exceeds capacity %d", n, r.length))
	}
	start := r.hdr.Head % r.length
	copy(r.combined[start:start+n], vs)
	r.advance(n)
	return nil
}

// advance moves count/head forward by n and recomputes tail, so that
// once count exceeds Len, head - tail = Len (mod 2*Len) always holds.
func (r *Ring[T, H]) advance(n uint64) {
	r.hdr.Count += n
	r.hdr.Head = r.hdr.Count % (2 * r.length)
	if r.hdr.Count > r.length {
		r.hdr.Tail = modIndex(r.hdr.Head, r.length, 2*r.length)
	}
}

// Insert overwrites the element already written at logical position i
// in place, without moving count, head, or tail. Per the tightened
// precondition, a position behind the current tail has already been
// overwritten by the ring itself and may no longer be addressed this
// way: i must be in [tail, count).
func (r *Ring[T, H]) Insert(v T, i uint64) error {
	if err := r.checkInsertable(i, 1); err != nil {
		return err
	}
	r.ring[i%r.length] = v
	return nil
}

// InsertValues overwrites len(vs) contiguous elements starting at
// logical position i, under the same tightened bounds as Insert.
func (r *Ring[T, H]) InsertValues(vs []T, i uint64) error {
	n := uint64(len(vs))
	if n == 0 {
		return nil
	}
	if err := r.checkInsertable(i, n); err != nil {
		return err
	}
	start := i % r.length
	copy(r.combined[start:start+n], vs)
	return nil
}

func (r *Ring[T, H]) checkInsertable(i, n uint64) error {
	if n > r.length {
		return newError("insert", r.name, KindIndexOutOfRange, fmt.Errorf("%d values exceeds capacity %d", n, r.length))
	}
	if i+n > r.hdr.Count {
		return newError("insert", r.name, KindIndexOutOfRange, nil)
	}
	if r.beforeTail(i) {
		return newError("insert", r.name, KindWindowCrossesTail, fmt.Errorf("position %d already overwritten", i))
	}
	return nil
}

// beforeTail reports whether logical position p lies behind the
// ring's current tail. p is a true logical position — monotonically
// growing, the same space as Count — not a value already reduced
// modulo Len or 2*Len, so this compares against the unbounded tail
// (Count-Len) directly rather than against the stored Tail field
// (which IS reduced mod 2*Len for on-disk compactness and so cannot
// distinguish two positions an exact multiple of Len apart, even
// though only one of them has actually been overwritten).
func (r *Ring[T, H]) beforeTail(p uint64) bool {
	if r.hdr.Count <= r.length {
		return false
	}
	trueTail := r.hdr.Count - r.length
	return p < trueTail
}

// Slice returns the wrap-free window [start, stop) as a view directly
// over the mapping's combined (primary+mirror) region: no copy, valid
// until the next Push/PushValues/Insert/InsertValues/Close. stop-start
// must not exceed Len, and start must not lie behind the current tail.
func (r *Ring[T, H]) Slice(start, stop uint64) ([]T, error) {
	if start > stop {
		return nil, newError("slice", r.name, KindIndexOutOfRange, fmt.Errorf("start %d > stop %d", start, stop))
	}
	n := stop - start
	if n > r.length {
		return nil, newError("slice", r.name, KindIndexOutOfRange, fmt.Errorf("window of %d exceeds capacity %d", n, r.length))
	}
	if r.beforeTail(start) {
		return nil, newError("slice", r.name, KindWindowCrossesTail, fmt.Errorf("start %d behind tail %d", start, r.hdr.Tail))
	}
	idx := start % r.length
	return r.combined[idx : idx+n], nil
}

// SliceFromTail returns the k oldest still-valid elements, starting at
// the current tail.
func (r *Ring[T, H]) SliceFromTail(k uint64) ([]T, error) {
	if k > r.length {
		return nil, newError("sliceFromTail", r.name, KindIndexOutOfRange, nil)
	}
	idx := r.hdr.Tail % r.length
	return r.combined[idx : idx+k], nil
}

// SliceToHead returns the k most recently written elements, ending at
// the current head.
func (r *Ring[T, H]) SliceToHead(k uint64) ([]T, error) {
	if k > r.hdr.Count || k > r.length {
		return nil, newError("sliceToHead", r.name, KindIndexOutOfRange, nil)
	}
	idx := modIndex(r.hdr.Head, k, 2*r.length) % r.length
	return r.combined[idx : idx+k], nil
}

// vim: foldmethod=marker
