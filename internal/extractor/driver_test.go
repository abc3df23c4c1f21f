package extractor

import (
	"context"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shCommand builds a fake extractor out of a shell script; the real
// invocation arguments land in $0 and onward and are ignored.
func shCommand(script string) *Command {
	return &Command{Name: "sh", Args: []string{"-c", script}}
}

func requirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake extractor scripts need a POSIX shell")
	}
}

func TestDownloadSingle(t *testing.T) {
	requirePOSIX(t)
	ctx := context.Background()

	t.Run("CapturesOutputAndExitCode", func(t *testing.T) {
		d := NewDriver(shCommand("echo downloading; echo oops >&2; exit 0"), 0, 0, 0)

		result, err := d.DownloadSingle(ctx, "http://example.com/ch/1", t.TempDir(), "/dev/null", nil)
		require.NoError(t, err)
		assert.Equal(t, 0, result.ExitCode)
		assert.Contains(t, result.Stdout, "downloading")
		assert.Contains(t, result.Stderr, "oops")
	})

	t.Run("NonZeroExitIsReported", func(t *testing.T) {
		d := NewDriver(shCommand("echo broken >&2; exit 3"), 0, 0, 0)

		result, err := d.DownloadSingle(ctx, "http://example.com/ch/1", t.TempDir(), "/dev/null", nil)
		require.NoError(t, err)
		assert.Equal(t, 3, result.ExitCode)
		assert.Contains(t, result.Stderr, "broken")
	})

	t.Run("TimeoutKillsProcess", func(t *testing.T) {
		d := NewDriver(shCommand("sleep 30"), 200*time.Millisecond, 0, 0)

		start := time.Now()
		_, err := d.DownloadSingle(ctx, "http://example.com/ch/1", t.TempDir(), "/dev/null", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestDownloadSeries(t *testing.T) {
	requirePOSIX(t)
	ctx := context.Background()

	t.Run("ForwardsStrictlyIncreasingProgress", func(t *testing.T) {
		script := `
echo "10% 1.0 MB 500 kB/s"
echo "10% 1.1 MB 500 kB/s"
echo "55% 2.0 MB 500 kB/s"
echo "40% backwards sample B/s"
echo "90% 3.0 MB 500 kB/s"
`
		d := NewDriver(shCommand(script), 0, 0, 0)

		var percents []int
		files, err := d.DownloadSeries(ctx, "http://example.com/manga", t.TempDir(), "/dev/null", SeriesCallbacks{
			OnProgress: func(percent, currentFile, totalFiles int, message string) {
				percents = append(percents, percent)
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []int{10, 55, 90}, percents)
		assert.Zero(t, files)
	})

	t.Run("CountsCompletedFiles", func(t *testing.T) {
		dir := t.TempDir()
		script := "echo " + dir + "/Manga Ch.1.cbz; echo " + dir + "/Manga Ch.2.cbz"
		d := NewDriver(shCommand(script), 0, 0, 0)

		files, err := d.DownloadSeries(ctx, "http://example.com/manga", dir, "/dev/null", SeriesCallbacks{})
		require.NoError(t, err)
		assert.Equal(t, 2, files)
	})

	t.Run("CancellationKillsProcess", func(t *testing.T) {
		script := `
i=0
while [ $i -lt 100 ]; do
  echo "$i% 1.0 MB 500 kB/s"
  i=$((i+1))
  sleep 0.05
done
`
		d := NewDriver(shCommand(script), 0, 0, 0)

		cancelled := false
		var started *os.Process
		_, err := d.DownloadSeries(ctx, "http://example.com/manga", t.TempDir(), "/dev/null", SeriesCallbacks{
			IsCancelled: func() bool { return cancelled },
			OnProcessStarted: func(p *os.Process) {
				started = p
			},
			OnProgress: func(percent, currentFile, totalFiles int, message string) {
				if percent >= 3 {
					cancelled = true
				}
			},
		})
		assert.ErrorIs(t, err, ErrCancelled)
		assert.NotNil(t, started)
	})

	t.Run("NonZeroExitSurfacesStderrTail", func(t *testing.T) {
		d := NewDriver(shCommand("echo 'HttpError: 403 Forbidden' >&2; exit 1"), 0, 0, 0)

		_, err := d.DownloadSeries(ctx, "http://example.com/manga", t.TempDir(), "/dev/null", SeriesCallbacks{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403 Forbidden")
		assert.Contains(t, err.Error(), "exited with code 1")
	})
}

func TestBoundedBuffer(t *testing.T) {
	t.Run("KeepsNewestLines", func(t *testing.T) {
		b := newBoundedBuffer(32)
		for i := 0; i < 10; i++ {
			b.WriteLine(strings.Repeat("x", 10))
		}
		assert.LessOrEqual(t, len(b.String()), 32)
	})

	t.Run("TailTrims", func(t *testing.T) {
		b := newBoundedBuffer(1024)
		b.WriteLine("first")
		b.WriteLine("second")
		assert.Equal(t, "second", b.Tail(7))
	})
}
