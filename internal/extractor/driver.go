package extractor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrCancelled signals a cooperative cancellation observed mid-download.
	ErrCancelled = errors.New("download cancelled")
	// ErrTimeout signals the subprocess outlived its deadline and was killed.
	ErrTimeout = errors.New("extractor timed out")
)

// capture at most this much of each stream; older output is discarded
const streamBufferLimit = 64 * 1024

// how much of stderr is surfaced as an error message
const stderrTailLimit = 2000

// ProgressFunc receives progress samples parsed from the extractor's stdout.
// totalFiles is 0 when unknown.
type ProgressFunc func(percent int, currentFile, totalFiles int, message string)

// Driver runs the external extractor, one URL at a time, and observes its
// progress through stdout.
type Driver struct {
	cmd *Command

	chapterTimeout  time.Duration
	seriesTimeout   time.Duration
	metadataTimeout time.Duration

	// throttle for mirroring subprocess output into the debug log
	logEvery rate.Sometimes
}

// NewDriver wraps a resolved extractor command.
func NewDriver(cmd *Command, chapterTimeout, seriesTimeout, metadataTimeout time.Duration) *Driver {
	if chapterTimeout <= 0 {
		chapterTimeout = 10 * time.Minute
	}
	if seriesTimeout <= 0 {
		seriesTimeout = 2 * time.Hour
	}
	if metadataTimeout <= 0 {
		metadataTimeout = 60 * time.Second
	}
	return &Driver{
		cmd:             cmd,
		chapterTimeout:  chapterTimeout,
		seriesTimeout:   seriesTimeout,
		metadataTimeout: metadataTimeout,
		logEvery:        rate.Sometimes{Interval: time.Second},
	}
}

// Installed reports whether an extractor invocation was resolved.
func (d *Driver) Installed() bool {
	return d != nil && d.cmd != nil
}

// SingleResult captures one per-chapter extractor run.
type SingleResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// DownloadSingle fetches one chapter URL into destination. The subprocess
// output is captured into bounded buffers and mirrored to the debug log. A
// run past the per-chapter timeout is forcibly terminated. onStarted, when
// non-nil, receives the child process for cancellation handling.
func (d *Driver) DownloadSingle(ctx context.Context, chapterURL, destination, configFile string, onStarted func(*os.Process)) (*SingleResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, d.chapterTimeout)
	defer cancel()

	cmd := d.cmd.build(runCtx, chapterURL, "-d", destination, "--config", configFile)

	stdout := newBoundedBuffer(streamBufferLimit)
	stderr := newBoundedBuffer(streamBufferLimit)

	if err := d.runCapturing(cmd, stdout, stderr, onStarted); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if runCtx.Err() == context.DeadlineExceeded {
				return &SingleResult{ExitCode: exitErr.ExitCode(), Stdout: stdout.String(), Stderr: stderr.String()},
					fmt.Errorf("%w after %s", ErrTimeout, d.chapterTimeout)
			}
			return &SingleResult{ExitCode: exitErr.ExitCode(), Stdout: stdout.String(), Stderr: stderr.String()}, nil
		}
		return nil, fmt.Errorf("run extractor: %w", err)
	}

	return &SingleResult{ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// progress lines look like "  12.3 MB  540.2 kB/s  42%" or "42% 12.3 MB 540.2 kB/s"
var progressRe = regexp.MustCompile(`(\d{1,3})%`)

// SeriesCallbacks are the executor's hooks into a whole-series run.
type SeriesCallbacks struct {
	// IsCancelled is polled on every progress event
	IsCancelled func() bool
	// OnProcessStarted receives the child process for cancellation handling
	OnProcessStarted func(process *os.Process)
	// OnProgress receives strictly increasing percent samples
	OnProgress ProgressFunc
}

// DownloadSeries fetches a whole series URL into destination using the
// pre-created config file (which carries the CBZ postprocessor stanza).
// Returns the number of completed files counted from stdout.
func (d *Driver) DownloadSeries(ctx context.Context, url, destination, configFile string, callbacks SeriesCallbacks) (int, error) {
	runCtx, runCancel := context.WithTimeout(ctx, d.seriesTimeout)
	defer runCancel()

	cmd := d.cmd.build(runCtx, url, "-d", destination, "--config", configFile)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := newBoundedBuffer(streamBufferLimit)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start extractor: %w", err)
	}
	if callbacks.OnProcessStarted != nil {
		callbacks.OnProcessStarted(cmd.Process)
	}

	filesDone := 0
	lastPercent := -1
	cancelled := false

	scanner := bufio.NewScanner(stdoutPipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		d.logEvery.Do(func() {
			slog.Debug("extractor output", "line", line)
		})

		// a completed file is echoed as its path under the destination
		if strings.HasPrefix(line, destination) || strings.HasSuffix(strings.TrimSpace(line), ".cbz") {
			filesDone++
		}

		if m := progressRe.FindStringSubmatch(line); m != nil && strings.Contains(line, "B/s") {
			percent, _ := strconv.Atoi(m[1])
			if percent > lastPercent && percent <= 100 {
				lastPercent = percent
				if callbacks.OnProgress != nil {
					callbacks.OnProgress(percent, filesDone, 0, line)
				}
			}
			if callbacks.IsCancelled != nil && callbacks.IsCancelled() {
				cancelled = true
				_ = cmd.Process.Kill()
				break
			}
		}
	}

	// drain whatever remains so Wait does not block on the pipe
	io.Copy(io.Discard, stdoutPipe)
	waitErr := cmd.Wait()

	if cancelled {
		return filesDone, ErrCancelled
	}
	if callbacks.IsCancelled != nil && callbacks.IsCancelled() {
		return filesDone, ErrCancelled
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return filesDone, fmt.Errorf("%w after %s", ErrTimeout, d.seriesTimeout)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return filesDone, fmt.Errorf("extractor exited with code %d: %s",
				exitErr.ExitCode(), stderr.Tail(stderrTailLimit))
		}
		return filesDone, fmt.Errorf("wait for extractor: %w", waitErr)
	}

	return filesDone, nil
}

// runCapturing starts the command with both streams tied to bounded buffers
// and waits for completion, mirroring output to the debug log.
func (d *Driver) runCapturing(cmd *exec.Cmd, stdout, stderr *boundedBuffer, onStarted func(*os.Process)) error {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start extractor: %w", err)
	}
	if onStarted != nil {
		onStarted(cmd.Process)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go d.pump(stdoutPipe, stdout, &wg)
	go d.pump(stderrPipe, stderr, &wg)
	wg.Wait()

	return cmd.Wait()
}

// pump copies a stream line by line into a bounded buffer, throttling the
// debug-log mirror.
func (d *Driver) pump(r io.Reader, buf *boundedBuffer, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteLine(line)
		d.logEvery.Do(func() {
			slog.Debug("extractor output", "line", line)
		})
	}
}

// boundedBuffer keeps the newest bytes of a stream, dropping the oldest
// whole lines once over the limit.
type boundedBuffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	b.trim()
	return len(p), nil
}

func (b *boundedBuffer) WriteLine(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, line...)
	b.data = append(b.data, '\n')
	b.trim()
}

func (b *boundedBuffer) trim() {
	if len(b.data) <= b.limit {
		return
	}
	cut := len(b.data) - b.limit
	if idx := strings.IndexByte(string(b.data[cut:]), '\n'); idx >= 0 {
		cut += idx + 1
	}
	b.data = b.data[cut:]
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

// Tail returns at most n trailing bytes.
func (b *boundedBuffer) Tail(n int) string {
	s := b.String()
	if len(s) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[len(s)-n:])
}
