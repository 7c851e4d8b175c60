package sample

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_AppendAndFreeze(t *testing.T) {
	st := NewStream(4)
	require.NoError(t, st.Append(Sample{Seq: 1, Success: true, Reason: ReasonOK}))
	require.NoError(t, st.Append(Sample{Seq: 2, Reason: ReasonTimeout}))

	assert.Equal(t, 2, st.Len())

	st.Freeze()
	assert.ErrorIs(t, st.Append(Sample{Seq: 3}), ErrFrozen)
	assert.Equal(t, 2, st.Len())
}

func TestStream_AllReturnsCopy(t *testing.T) {
	st := NewStream(0)
	require.NoError(t, st.Append(Sample{Seq: 1}))

	got := st.All()
	got[0].Seq = 99

	assert.Equal(t, uint64(1), st.All()[0].Seq)
}

func TestStream_ConcurrentAppend(t *testing.T) {
	st := NewStream(0)
	var wg sync.WaitGroup
	for w := 0; w < 20; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				st.Append(Sample{Duration: time.Millisecond})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 2000, st.Len())
}

func TestSample_End(t *testing.T) {
	s := Sample{Offset: 2 * time.Second, Duration: 150 * time.Millisecond}
	assert.Equal(t, 2150*time.Millisecond, s.End())
}
