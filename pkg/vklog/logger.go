// Package vklog provides BadgeVMS's logging surface: a small interface over
// logrus with colorized terminal output and optional progress bars, used by
// every package instead of the standard library's log package.
package vklog

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

// Logger is the minimal logging surface every BadgeVMS component depends on.
type Logger interface {
	Debugf(format string, x ...interface{})
	Errorf(format string, x ...interface{})
	Infof(format string, x ...interface{})
	Printf(format string, x ...interface{})
	Warnf(format string, x ...interface{})
	IsInfoEnabled() bool
	IsDebugEnabled() bool
}

// Progress displays the state of a long running byte transfer: OTA's
// firmware flash and per-file application downloads are the only
// operations in BadgeVMS that run long enough to need one, and both only
// ever report bytes moved, so this interface has no notion of units
// beyond that.
type Progress interface {
	Finish(success bool)
	Increment(n int64)
	Write(p []byte) (n int, err error)
	ProxyReader(r io.Reader) io.ReadCloser
}

// ProgressReporter creates Progress trackers for a label and an expected
// byte total (0 for a transfer whose size isn't known up front, e.g. a
// file update streamed before the response's Content-Length is read).
type ProgressReporter interface {
	NewProgress(label string, total int64) Progress
}

// View bundles a Logger with the ability to report progress, the interface
// cmd/badgevms threads through every subsystem constructor.
type View interface {
	Logger
	ProgressReporter
}

// CLI logs to a terminal, degrading gracefully when output isn't a TTY.
type CLI struct {
	DisableColors      bool
	DisableTTY         bool
	IsDebug            bool
	IsVerbose          bool
	lock               sync.Mutex
	isTrackingProgress bool
	bars               map[*mpb.Bar]bool
	buffer             *bytes.Buffer
	progressContainer  *mpb.Progress
}

// Stdout returns a writer suitable for colorized output on the current
// platform: on Windows terminals that don't natively support ANSI escapes
// it wraps os.Stdout through github.com/mattn/go-colorable, matching the
// same library's use for "vorteil run"'s terminal attach in cmd/vorteil/run.go.
// When the console isn't a real terminal (piped output, CI, headless boot),
// following github.com/mattn/go-isatty's detection, it returns os.Stdout
// unwrapped; it does not change any CLI's DisableColors setting.
func Stdout() io.Writer {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return os.Stdout
	}
	return colorable.NewColorableStdout()
}

func (log *CLI) Debugf(format string, x ...interface{}) {
	if log.IsDebug {
		logrus.Tracef(format, x...)
	}
}

func (log *CLI) Errorf(format string, x ...interface{}) {
	logrus.Errorf(format, x...)
}

func (log *CLI) Infof(format string, x ...interface{}) {
	if log.IsVerbose {
		logrus.Debugf(format, x...)
	}
}

func (log *CLI) Printf(format string, x ...interface{}) {
	logrus.Printf(format, x...)
}

func (log *CLI) Warnf(format string, x ...interface{}) {
	logrus.Warnf(format, x...)
}

func (log *CLI) IsInfoEnabled() bool {
	return logrus.IsLevelEnabled(logrus.InfoLevel)
}

func (log *CLI) IsDebugEnabled() bool {
	return logrus.IsLevelEnabled(logrus.DebugLevel)
}

// byteProgressDecorator is the one progress-bar layout BadgeVMS needs: a
// running "done / total KiB" counter. Unlike a generic CLI that renders
// percentages for some jobs and byte counts for others, OTA only ever
// reports a transfer's byte position, so there's nothing to switch on.
func byteProgressDecorator() decor.Decorator {
	return decor.Counters(decor.UnitKiB, "% .1f / % .1f")
}

// NewProgress creates a progress bar for a total-byte transfer, or a no-op
// tracker when TTY output is disabled (headless boot, or a device whose
// console is the badge's own LCD rather than this host terminal). total
// of 0 renders a spinner instead of a bar, for transfers (like a firmware
// or file download) whose size isn't known until the HTTP response headers
// arrive.
func (log *CLI) NewProgress(label string, total int64) Progress {
	if log.DisableTTY {
		return &nilProgress{total: total}
	}

	log.lock.Lock()
	defer log.lock.Unlock()

	if !log.isTrackingProgress {
		log.isTrackingProgress = true
		log.buffer = new(bytes.Buffer)
		logrus.SetOutput(log.buffer)
		log.progressContainer = mpb.New(mpb.WithWidth(80))
		log.bars = make(map[*mpb.Bar]bool)
	}

	nameDecorator := decor.Name(label, decor.WC{W: len(label) + 1, C: decor.DidentRight})

	var p *mpb.Bar
	if total == 0 {
		p = log.progressContainer.AddSpinner(0, mpb.SpinnerOnLeft, mpb.PrependDecorators(nameDecorator))
	} else {
		p = log.progressContainer.AddBar(total,
			mpb.PrependDecorators(
				nameDecorator,
				decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 4}), "done"),
			),
			mpb.AppendDecorators(byteProgressDecorator()),
		)
	}

	log.bars[p] = true

	pb := &pb{log: log, p: p, total: total, interval: 100 * time.Millisecond}
	pb.nextUpdate = time.Now().Add(pb.interval)
	return pb
}

type nilProgress struct {
	cursor int64
	total  int64
}

func (np *nilProgress) Increment(n int64)     { np.cursor += n }
func (np *nilProgress) Finish(success bool)   {}
func (np *nilProgress) Write(p []byte) (int, error) {
	np.cursor += int64(len(p))
	return len(p), nil
}
func (np *nilProgress) ProxyReader(r io.Reader) io.ReadCloser {
	if rc, ok := r.(io.ReadCloser); ok {
		return rc
	}
	return ioutil.NopCloser(r)
}

type pb struct {
	log    *CLI
	p      *mpb.Bar
	closed bool
	total  int64
	cursor int64
	bar    int64

	buffered   int64
	interval   time.Duration
	nextUpdate time.Time
}

func (pb *pb) Increment(n int64) {
	pb.buffered += n
	pb.bar += n
	if !time.Now().Before(pb.nextUpdate) {
		pb.flush()
	}
}

func (pb *pb) flush() {
	pb.nextUpdate = time.Now().Add(pb.interval)
	pb.p.IncrInt64(pb.buffered)
	pb.buffered = 0
}

func (pb *pb) Finish(success bool) {
	if pb.closed {
		return
	}
	pb.flush()
	pb.closed = true
	if pb.bar != pb.total || pb.total == 0 || !success {
		pb.p.Abort(false)
	}

	pb.log.lock.Lock()
	defer pb.log.lock.Unlock()
	delete(pb.log.bars, pb.p)

	if len(pb.log.bars) == 0 {
		pb.log.bars = nil
		pb.log.isTrackingProgress = false
		pb.log.progressContainer.Wait()
		pb.log.progressContainer = nil
		logrus.SetOutput(os.Stdout)
		_, _ = pb.log.buffer.WriteTo(os.Stdout)
		pb.log.buffer = nil
	}
}

func (pb *pb) Write(p []byte) (n int, err error) {
	n = len(p)
	pb.cursor += int64(n)
	if pb.bar < pb.cursor {
		pb.Increment(pb.cursor - pb.bar)
	}
	return
}

type proxyReadCloser struct {
	io.Reader
	closeFn func() error
}

func (p *proxyReadCloser) Close() error { return p.closeFn() }

func (pb *pb) ProxyReader(r io.Reader) io.ReadCloser {
	pr := pb.p.ProxyReader(r)
	return &proxyReadCloser{
		Reader: pr,
		closeFn: func() error {
			pb.flush()
			pb.Finish(pb.total == pb.bar)
			return pr.Close()
		},
	}
}

// severityColor maps a logrus level to the SprintFunc that colors it,
// built once at package init rather than per call. Levels absent from the
// map (InfoLevel) print uncolored.
var severityColor = map[logrus.Level]func(a ...interface{}) string{
	logrus.TraceLevel: color.New(color.Faint).SprintFunc(),
	logrus.DebugLevel: color.New(color.FgBlue).SprintFunc(),
	logrus.WarnLevel:  color.New(color.FgYellow).SprintFunc(),
	logrus.ErrorLevel: color.New(color.FgRed).SprintFunc(),
}

// Format renders a logrus entry with level-appropriate color, matching the
// badge's own severity-coded status lines.
func (log *CLI) Format(entry *logrus.Entry) ([]byte, error) {
	msg := entry.Message
	if colorize, ok := severityColor[entry.Level]; ok && !log.DisableColors {
		msg = colorize(msg)
	}
	return []byte(msg + "\n"), nil
}
