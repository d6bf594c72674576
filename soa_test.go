package magicring

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"pault.ag/go/magicring/internal/rtest"
)

type tick struct {
	Seq   uint64
	Price float32
	Side  byte
}

func createTestMultiRing(t *testing.T, length uint64) *MultiRing[tick, header1] {
	t.Helper()
	name := freshRingName(t)
	mr, err := CreateMulti[tick, header1](name, length)
	rtest.SkipIfUnavailable(t, err)
	t.Cleanup(func() { _ = mr.Close() })
	return mr
}

func TestDecomposeFieldsRejectsNonStruct(t *testing.T) {
	_, err := CreateMulti[int, header1](freshRingName(t), 8)
	require.Error(t, err)
}

func TestSyncedElementCount(t *testing.T) {
	// granularity 4096, fields of size 8, 4, 1: r = 4096/gcd(4096,sz).
	fields := []decomposedField{
		{Name: "A", Type: reflect.TypeOf(uint64(0))},
		{Name: "B", Type: reflect.TypeOf(uint32(0))},
		{Name: "C", Type: reflect.TypeOf(byte(0))},
	}
	m := syncedElementCount(4096, fields, 1)
	require.Equal(t, uint64(4096), m)
	require.Equal(t, uint64(4096), syncedElementCount(4096, fields, 4096))
	require.Equal(t, uint64(8192), syncedElementCount(4096, fields, 4097))
}

func TestMultiRingFieldNames(t *testing.T) {
	mr := createTestMultiRing(t, 1)
	require.ElementsMatch(t, []string{"Seq", "Price", "Side"}, mr.Fields())
}

func TestMultiRingPushAndValueAt(t *testing.T) {
	mr := createTestMultiRing(t, 1)

	pushed := mr.Push(tick{Seq: 1, Price: 101.5, Side: 'B'})
	require.Equal(t, uint64(1), pushed.Fields["Seq"])

	v, err := mr.ValueAtInField("Seq", 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), v)

	v, err = mr.ValueAtInField("Price", 0)
	require.NoError(t, err)
	require.Equal(t, float32(101.5), v)
}

func TestMultiRingPushSliceColumnar(t *testing.T) {
	mr := createTestMultiRing(t, 4)

	err := mr.PushSlice(Slice{
		"Seq":   []uint64{1, 2, 3},
		"Price": []float32{1.1, 2.2, 3.3},
		"Side":  []byte{'B', 'S', 'B'},
	})
	require.NoError(t, err)

	seqs, err := mr.SliceField("Seq", 0, 3)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestMultiRingSliceFromTailPreservesCorrespondence(t *testing.T) {
	mr := createTestMultiRing(t, 4)

	for i := uint64(0); i < 3; i++ {
		mr.Push(tick{Seq: i, Price: float32(i) + 0.5, Side: byte('A' + i)})
	}

	got, err := mr.SliceFromTail(3)
	require.NoError(t, err)

	seqs := got["Seq"].([]uint64)
	prices := got["Price"].([]float32)
	sides := got["Side"].([]byte)
	require.Equal(t, []uint64{0, 1, 2}, seqs)
	for i := range seqs {
		require.Equal(t, float32(seqs[i])+0.5, prices[i])
		require.Equal(t, byte('A'+seqs[i]), sides[i])
	}
}

func TestMultiRingPushFieldTypeMismatch(t *testing.T) {
	mr := createTestMultiRing(t, 1)
	err := mr.PushField("Seq", int32(1))
	require.Error(t, err)
}

