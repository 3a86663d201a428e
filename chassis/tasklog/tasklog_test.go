package tasklog

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLog_RendersHTMLFragments(t *testing.T) {
	l := New()
	l.Add("Process started at %s.", "2024-01-01 10:00:00")
	l.Add("Adding Product: %s with quantity: %d", "SKU<1>", 2)

	require.Equal(t,
		"<p>Process started at 2024-01-01 10:00:00.</p> <p>Adding Product: SKU&lt;1&gt; with quantity: 2</p>",
		l.String())
	require.Equal(t, 2, l.Len())
	require.True(t, l.Contains("SKU<1>"))
	require.False(t, l.Contains("missing"))
}

func TestLog_EntriesAreTimestampedAndCopied(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := New()
	l.now = func() time.Time { return fixed }
	l.Add("one")

	entries := l.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, fixed, entries[0].At)

	entries[0].Text = "changed"
	require.Equal(t, "one", l.Entries()[0].Text)
}

func TestLog_ConcurrentAppend(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l.Add("step %d", n)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 50, l.Len())
}

func TestStamp(t *testing.T) {
	require.Equal(t, "2024-05-01 12:30:05", Stamp(time.Date(2024, 5, 1, 12, 30, 5, 0, time.UTC)))
}
