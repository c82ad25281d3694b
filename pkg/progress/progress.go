package progress

import (
	"context"
	"fmt"
	"io"
	"time"

	pb "github.com/schollz/progressbar/v3"
)

type pbKey struct{}

// Open attaches a reporter writing to w to ctx.
func Open(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, pbKey{}, &Reporter{w: w})
}

// FromContext returns the reporter attached by Open, or nil. A nil
// Reporter draws nothing.
func FromContext(ctx context.Context) *Reporter {
	r, _ := ctx.Value(pbKey{}).(*Reporter)
	return r
}

// Reporter draws progress bars for package downloads and installation
// steps. It satisfies go-getter's ProgressTracker.
type Reporter struct {
	w io.Writer
}

type Progress struct {
	bar    *pb.ProgressBar
	prefix string
}

func (t *Progress) Add(cnt int64) {
	if t.bar == nil {
		return
	}

	t.bar.Add64(cnt)
}

func (t *Progress) Tick() {
	t.Add(1)
}

func (t *Progress) Close() {
	if t.bar == nil {
		return
	}

	t.bar.Close()
}

func (t *Progress) On(step string) {
	if t.bar == nil {
		return
	}

	t.bar.Describe(t.prefix + ": " + step)
}

// Count starts a bar counting up to total.
func (r *Reporter) Count(total int64, desc string) *Progress {
	if r == nil || r.w == nil {
		return &Progress{}
	}

	bar := pb.NewOptions64(
		total,
		pb.OptionSetDescription(desc),
		pb.OptionSetWriter(r.w),
		pb.OptionSetWidth(20),
		pb.OptionThrottle(65*time.Millisecond),
		pb.OptionShowCount(),
		pb.OptionSetTheme(
			pb.Theme{Saucer: "=", SaucerPadding: " ", BarStart: "[", BarEnd: "]"},
		),
		pb.OptionOnCompletion(func() {
			fmt.Fprint(r.w, "\n")
		}),
		pb.OptionFullWidth(),
	)
	bar.RenderBlank()

	return &Progress{prefix: desc, bar: bar}
}

// TrackProgress wraps a download stream in a byte counting bar.
func (r *Reporter) TrackProgress(src string, currentSize, totalSize int64, stream io.ReadCloser) io.ReadCloser {
	if r == nil || r.w == nil {
		return stream
	}

	bar := pb.NewOptions64(
		totalSize,
		pb.OptionSetDescription(src),
		pb.OptionSetWriter(r.w),
		pb.OptionSetWidth(20),
		pb.OptionThrottle(65*time.Millisecond),
		pb.OptionShowBytes(true),
		pb.OptionClearOnFinish(),
	)

	if currentSize > 0 {
		bar.Add64(currentSize)
	}

	return &trackedStream{ReadCloser: stream, bar: bar}
}

type trackedStream struct {
	io.ReadCloser
	bar *pb.ProgressBar
}

func (t *trackedStream) Read(p []byte) (int, error) {
	n, err := t.ReadCloser.Read(p)
	t.bar.Add(n)
	return n, err
}

func (t *trackedStream) Close() error {
	t.bar.Finish()
	return t.ReadCloser.Close()
}

// Count starts a bar using the reporter attached to ctx.
func Count(ctx context.Context, total int64, desc string) *Progress {
	return FromContext(ctx).Count(total, desc)
}
