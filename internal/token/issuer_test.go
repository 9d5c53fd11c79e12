package token

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constReader yields the same byte forever and counts reads.
type constReader struct {
	b     byte
	reads int
}

func (r *constReader) Read(p []byte) (int, error) {
	r.reads++
	for i := range p {
		p[i] = r.b
	}
	return len(p), nil
}

func TestIssue_Format(t *testing.T) {
	t.Parallel()

	is := NewIssuer()
	for i := 0; i < 200; i++ {
		tok, err := is.Issue(PreviewPrefix, nil)
		require.NoError(t, err)
		assert.Len(t, tok, 35)
		assert.True(t, strings.HasPrefix(tok, PreviewPrefix))
		assert.True(t, Valid(PreviewPrefix, tok), "token %q should be valid", tok)
	}
}

func TestIssue_CustomPrefix(t *testing.T) {
	t.Parallel()

	tok, err := NewIssuer().Issue("svc_", nil)
	require.NoError(t, err)
	assert.Len(t, tok, len("svc_")+32)
	assert.True(t, Valid("svc_", tok))
	assert.False(t, Valid(PreviewPrefix, tok))
}

func TestIssue_PairwiseDistinct(t *testing.T) {
	t.Parallel()

	is := NewIssuer()
	taken := NewSet()
	for i := 0; i < 1000; i++ {
		tok, err := is.Issue(PreviewPrefix, taken)
		require.NoError(t, err)
		require.False(t, taken.Contains(tok), "duplicate token %q", tok)
		taken.Add(tok)
	}
	assert.Equal(t, 1000, taken.Len())
}

func TestIssue_RegeneratesOnCollision(t *testing.T) {
	t.Parallel()

	zeros := bytes.Repeat([]byte{0x00}, RandomBytes)
	ones := bytes.Repeat([]byte{0x11}, RandomBytes)
	is := NewIssuer(WithRand(bytes.NewReader(append(zeros, ones...))))

	taken := NewSet(PreviewPrefix + strings.Repeat("00", RandomBytes))

	tok, err := is.Issue(PreviewPrefix, taken)
	require.NoError(t, err)
	assert.Equal(t, PreviewPrefix+strings.Repeat("11", RandomBytes), tok)
}

func TestIssue_EntropyExhausted(t *testing.T) {
	t.Parallel()

	r := &constReader{b: 0xab}
	is := NewIssuer(WithRand(r), WithMaxAttempts(5))
	taken := NewSet(PreviewPrefix + strings.Repeat("ab", RandomBytes))

	_, err := is.Issue(PreviewPrefix, taken)
	require.ErrorIs(t, err, ErrEntropyExhausted)
	assert.Equal(t, 5, r.reads)
}

func TestIssue_RandomSourceFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	is := NewIssuer(WithRand(iotest.ErrReader(boom)))

	_, err := is.Issue(PreviewPrefix, nil)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrEntropyExhausted)
}

func TestIssue_InvalidPrefix(t *testing.T) {
	t.Parallel()

	is := NewIssuer()

	_, err := is.Issue("", nil)
	assert.ErrorIs(t, err, ErrInvalidPrefix)

	_, err = is.Issue(strings.Repeat("p", MaxLength-31), nil)
	assert.ErrorIs(t, err, ErrInvalidPrefix)

	tok, err := is.Issue(strings.Repeat("p", MaxLength-32), nil)
	require.NoError(t, err)
	assert.Len(t, tok, MaxLength)
}

func TestWithMaxAttempts_IgnoresNonPositive(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultMaxAttempts, NewIssuer(WithMaxAttempts(0)).MaxAttempts())
	assert.Equal(t, DefaultMaxAttempts, NewIssuer(WithMaxAttempts(-3)).MaxAttempts())
	assert.Equal(t, 7, NewIssuer(WithMaxAttempts(7)).MaxAttempts())
}

func TestIssue_Concurrent(t *testing.T) {
	t.Parallel()

	is := NewIssuer()
	const workers, perWorker = 8, 200

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tok, err := is.Issue(PreviewPrefix, nil)
				if err != nil {
					t.Errorf("Issue failed: %v", err)
					return
				}
				mu.Lock()
				seen[tok] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestValid(t *testing.T) {
	t.Parallel()

	good := PreviewPrefix + strings.Repeat("0123456789abcdef", 2)

	tests := []struct {
		name string
		tok  string
		want bool
	}{
		{"well formed", good, true},
		{"uppercase hex", PreviewPrefix + strings.Repeat("ABCDEF0123456789", 2), false},
		{"too short", good[:34], false},
		{"too long", good + "0", false},
		{"wrong prefix", "px_" + good[3:], false},
		{"non hex", PreviewPrefix + strings.Repeat("g", 32), false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(PreviewPrefix, tt.tok))
		})
	}

	assert.False(t, Valid("", good))
}

func TestSet(t *testing.T) {
	t.Parallel()

	var nilSet *Set
	assert.False(t, nilSet.Contains("x"))
	assert.Equal(t, 0, nilSet.Len())

	s := NewSet("a", "", "b", "a")
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains(""))

	s.Add("c")
	assert.True(t, s.Contains("c"))
	assert.Equal(t, 3, s.Len())
}

func TestSet_ZeroValue(t *testing.T) {
	t.Parallel()

	var s Set
	assert.NotPanics(t, func() { s.Add("a") })
	assert.True(t, s.Contains("a"))
	assert.Equal(t, 1, s.Len())

	s.Add("")
	assert.Equal(t, 1, s.Len())
}
