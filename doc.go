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

// Package magicring implements a named, shared-memory, single-producer
// "magic" ring buffer: the backing storage is mapped twice, back to
// back, in virtual memory, so any window up to the buffer's capacity is
// always a contiguous byte range, whatever the wraparound point.
//
// A Ring[T, H] binds that trick to a concrete element type T and an
// optional caller-defined header type H that lives in the same shared
// region as the count/head/tail cursor. A MultiRing[T, H] lifts the
// same mechanism to a struct-of-arrays layout, one sub-ring per field
// of a record type T, with logical indices kept in lockstep.
//
// This package has no notion of multiple producers or cross-process
// synchronization: invariants on count/head/tail hold only if at most
// one writer ever mutates a given ring. Readers may race with a writer
// and observe a torn header. Callers that need more must layer their
// own synchronization over the header type H.
package magicring

// vim: foldmethod=marker
