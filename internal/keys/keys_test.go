package keys_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"stash/internal/keys"

	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "photo.png", want: "photo.png"},
		{name: "unix traversal", input: "../../etc/passwd", want: "passwd"},
		{name: "windows traversal", input: `..\..\boot.ini`, want: "boot.ini"},
		{name: "embedded dots", input: "a..b.txt", want: "ab.txt"},
		{name: "spaces and punctuation", input: "my photo (1).png", want: "my_photo_1_.png"},
		{name: "hidden file", input: ".env", want: "env"},
		{name: "non ascii", input: "文件.png", want: "png"},
		{name: "empty", input: "", want: "file"},
		{name: "only separators", input: "///", want: "file"},
		{name: "control characters", input: "a\x00b\nc.txt", want: "a_b_c.txt"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, keys.Sanitize(tc.input))
		})
	}
}

func TestSanitizeTruncatesKeepingExtension(t *testing.T) {
	t.Parallel()

	got := keys.Sanitize(strings.Repeat("a", 500) + ".jpeg")
	require.Len(t, got, 128)
	require.True(t, strings.HasSuffix(got, ".jpeg"), "extension lost: %s", got)
}

func TestKeyFormat(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	gen := keys.NewGenerator(func() time.Time { return at })

	key, ingested := gen.Key("photo.png")
	require.Equal(t, "1714564800000-photo.png", key)
	require.True(t, at.Equal(ingested))
}

func TestKeysUniqueWithFrozenClock(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	gen := keys.NewGenerator(func() time.Time { return at })

	first, _ := gen.Key("same.txt")
	second, _ := gen.Key("same.txt")
	require.NotEqual(t, first, second)
	require.Equal(t, "1714564800001-same.txt", second)
}

func TestKeysUniqueAtDistinctTimestamps(t *testing.T) {
	t.Parallel()

	times := []time.Time{
		time.UnixMilli(1000),
		time.UnixMilli(5000),
	}
	i := 0
	gen := keys.NewGenerator(func() time.Time {
		ts := times[i]
		i++
		return ts
	})

	a, _ := gen.Key("x.bin")
	b, _ := gen.Key("x.bin")
	require.Equal(t, "1000-x.bin", a)
	require.Equal(t, "5000-x.bin", b)
}

func TestKeysUniqueWhenClockGoesBackwards(t *testing.T) {
	t.Parallel()

	times := []time.Time{time.UnixMilli(2000), time.UnixMilli(1000)}
	i := 0
	gen := keys.NewGenerator(func() time.Time {
		ts := times[i]
		i++
		return ts
	})

	a, _ := gen.Key("x.bin")
	b, _ := gen.Key("x.bin")
	require.Equal(t, "2000-x.bin", a)
	require.Equal(t, "2001-x.bin", b)
}

func TestKeysUniqueConcurrently(t *testing.T) {
	t.Parallel()

	gen := keys.NewGenerator(nil)

	const workers = 8
	const perWorker = 200

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				key, _ := gen.Key("dup.txt")
				mu.Lock()
				seen[key] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*perWorker)
}
