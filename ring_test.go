package magicring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pault.ag/go/magicring/internal/rtest"
)

func freshRingName(t *testing.T) string { return rtest.FreshName(t, "magicring-test") }

type header1 struct {
	Magic uint32
}

func createTestRing(t *testing.T, length uint64) *Ring[uint64, header1] {
	t.Helper()
	name := freshRingName(t)
	r, err := Create[uint64, header1](name, length)
	rtest.SkipIfUnavailable(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// TestCreateRejectsAlreadyExists uses a named-namespace backend rather
// than Default(): on Linux, Default() is MemfdMapper, whose anonymous
// objects have no "already exists" concept (see mapping_test.go).
func TestCreateRejectsAlreadyExists(t *testing.T) {
	name := freshRingName(t)
	mapper := WithMapper(namedNamespaceMapper())
	r, err := Create[uint64, header1](name, 64, mapper)
	rtest.SkipIfUnavailable(t, err)
	defer r.Close()

	_, err = Create[uint64, header1](name, 64, mapper)
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	require.Equal(t, KindAlreadyExists, merr.Kind)
}

func TestOpenRejectsDoesNotExist(t *testing.T) {
	_, err := Open[uint64, header1](freshRingName(t), 64, true)
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	require.Equal(t, KindDoesNotExist, merr.Kind)
}

// TestPushOverwriteSemantics follows spec.md §8 Scenario B: push past
// capacity and confirm the head/tail/count bookkeeping described in
// §4.3's push formula.
func TestPushOverwriteSemantics(t *testing.T) {
	r := createTestRing(t, 512)
	L := r.Len()
	require.Equal(t, uint64(512), L)

	for i := uint64(0); i < L; i++ {
		r.Push(i)
	}
	st := r.State()
	require.Equal(t, L, st.Count)
	require.Equal(t, L, st.Head)
	require.Equal(t, uint64(0), st.Tail)

	r.Push(1000)
	st = r.State()
	require.Equal(t, L+1, st.Count)
	require.Equal(t, L+1, st.Head)
	require.Equal(t, uint64(1), st.Tail)

	v, err := r.ValueAt(L)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), v)

	for _, v := range []uint64{5000, 5001, 5002, 5003, 5004} {
		r.Push(v)
	}
	st = r.State()
	require.Equal(t, L+6, st.Count)
	require.Equal(t, L+6, st.Head)
	require.Equal(t, uint64(6), st.Tail)

	got, err := r.SliceFromTail(3)
	require.NoError(t, err)
	require.Equal(t, []uint64{6, 7, 8}, got)

	got, err = r.SliceToHead(3)
	require.NoError(t, err)
	require.Equal(t, []uint64{5002, 5003, 5004}, got)
}

func TestValueAtOutOfRange(t *testing.T) {
	r := createTestRing(t, 8)
	r.Push(1)
	_, err := r.ValueAt(1)
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	require.Equal(t, KindIndexOutOfRange, merr.Kind)
}

func TestPushValuesContiguousAcrossSeam(t *testing.T) {
	r := createTestRing(t, 1)
	L := r.Len()

	first := make([]uint64, L)
	for i := range first {
		first[i] = uint64(i + 1)
	}
	require.NoError(t, r.PushValues(first))
	require.NoError(t, r.PushValues([]uint64{100, 101, 102}))

	st := r.State()
	require.Equal(t, L+3, st.Count)

	got, err := r.Slice(L, L+3)
	require.NoError(t, err)
	require.Equal(t, []uint64{100, 101, 102}, got)
}

// overfillByOne pushes L+1 elements one at a time, so the ring wraps
// exactly once: tail becomes 1 (mod 2L) and the oldest logical
// position (0) has just been overwritten.
func overfillByOne(r *Ring[uint64, header1]) {
	L := r.Len()
	for i := uint64(0); i < L+1; i++ {
		r.Push(i + 1000)
	}
}

func TestSliceRejectsWindowBehindTail(t *testing.T) {
	r := createTestRing(t, 4)
	overfillByOne(r)
	st := r.State()
	require.Equal(t, uint64(1), st.Tail)

	_, err := r.Slice(0, 1)
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	require.Equal(t, KindWindowCrossesTail, merr.Kind)

	got, err := r.Slice(st.Tail, st.Tail+1)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestInsertRejectsBehindTail(t *testing.T) {
	r := createTestRing(t, 4)
	overfillByOne(r)
	st := r.State()
	require.Equal(t, uint64(1), st.Tail)

	err := r.Insert(100, 0)
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	require.Equal(t, KindWindowCrossesTail, merr.Kind)

	require.NoError(t, r.Insert(999, st.Tail))
	v, err := r.ValueAt(st.Tail)
	require.NoError(t, err)
	require.Equal(t, uint64(999), v)
}

// TestSliceRejectsStaleRemainderAlias covers a stale position that a
// remainder-only comparison (start mod Len >= Tail mod Len) would
// accept: after pushing exactly 2*Len+1 elements one at a time, the
// stored Tail is Len+1, so Tail mod Len is 1, and logical position 1
// also reduces to 1 mod Len even though it was overwritten Len
// positions ago. Comparing against the unbounded tail (Count-Len)
// derived from the monotonic Count, instead of the stored Tail, is
// what tells these apart.
func TestSliceRejectsStaleRemainderAlias(t *testing.T) {
	r := createTestRing(t, 1)
	L := r.Len()

	for i := uint64(0); i < 2*L+1; i++ {
		r.Push(i)
	}
	st := r.State()
	require.Equal(t, 2*L+1, st.Count)
	require.Equal(t, L+1, st.Tail)

	_, err := r.Slice(1, 2)
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	require.Equal(t, KindWindowCrossesTail, merr.Kind)

	err = r.Insert(999, 1)
	require.Error(t, err)
	require.ErrorAs(t, err, &merr)
	require.Equal(t, KindWindowCrossesTail, merr.Kind)

	got, err := r.Slice(st.Tail, st.Tail+1)
	require.NoError(t, err)
	require.Equal(t, []uint64{st.Tail}, got)
}

func TestResetClearsState(t *testing.T) {
	r := createTestRing(t, 8)
	r.Push(1)
	r.Push(2)
	r.Reset()
	st := r.State()
	require.Equal(t, State{}, st)
}

func TestHeaderIsLiveOverMapping(t *testing.T) {
	r := createTestRing(t, 8)
	r.Header().Magic = 0xCAFEBABE
	require.Equal(t, uint32(0xCAFEBABE), r.Header().Magic)
}

// TestCrossProcessAttach mirrors spec.md §8 Scenario C within a single
// process: Open a second handle over the same name and confirm writes
// made through one are visible through the other.
func TestCrossProcessAttach(t *testing.T) {
	name := freshRingName(t)
	w, err := Create[uint64, header1](name, 16)
	rtest.SkipIfUnavailable(t, err)
	defer w.Close()

	w.Push(42)

	// On the memfd backend w.Name() differs from the create-time label
	// (spec.md §6): it is the /proc/<pid>/fd/<n> path a second attacher
	// must use.
	r, err := Open[uint64, header1](w.Name(), 16, false)
	require.NoError(t, err)
	defer r.Close()

	v, err := r.ValueAt(0)
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)
}
