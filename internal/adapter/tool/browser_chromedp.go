package tool

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"council-ai/internal/domain"
	"council-ai/internal/infra/config"
)

// maxScreenshotBase64 caps a page screenshot at roughly 150KB of JPEG.
const maxScreenshotBase64 = 200000

// screenshotQualities are tried in order until a capture fits.
var screenshotQualities = []int{80, 60, 40, 20}

// ChromeDPBackend implements BrowserBackend on a single chromedp tab.
type ChromeDPBackend struct {
	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	tabCtx        context.Context
	tabCancel     context.CancelFunc
	timeout       time.Duration
	logger        *slog.Logger
}

var _ BrowserBackend = (*ChromeDPBackend)(nil)

// NewChromeDPBackend attaches to cfg.CDPURL when set and otherwise launches
// a local Chrome.
func NewChromeDPBackend(cfg config.BrowserConfig, logger *slog.Logger) (*ChromeDPBackend, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	b := &ChromeDPBackend{timeout: cfg.Timeout, logger: logger}

	var allocCtx context.Context
	if cfg.CDPURL != "" {
		allocCtx, b.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.CDPURL)
		logger.Info("browser: connecting to remote chrome", "url", cfg.CDPURL)
	} else {
		opts := make([]chromedp.ExecAllocatorOption, len(chromedp.DefaultExecAllocatorOptions))
		copy(opts, chromedp.DefaultExecAllocatorOptions[:])
		opts = append(opts,
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.WindowSize(1280, 800),
		)
		allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		logger.Info("browser: launching chrome", "headless", cfg.Headless)
	}

	var browserCtx context.Context
	browserCtx, b.browserCancel = chromedp.NewContext(allocCtx)
	b.tabCtx, b.tabCancel = chromedp.NewContext(browserCtx)

	// The first Run binds the CDP session to tabCtx, so it must not be a
	// derived context with its own deadline.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(b.tabCtx) }()
	select {
	case err := <-started:
		if err != nil {
			b.Close()
			return nil, domain.NewDomainError("NewChromeDPBackend", domain.ErrBackendUnavailable, err.Error())
		}
	case <-time.After(cfg.Timeout):
		b.Close()
		return nil, domain.NewDomainError("NewChromeDPBackend", domain.ErrBackendUnavailable,
			fmt.Sprintf("browser did not start within %s", cfg.Timeout))
	}

	logger.Info("browser: started")
	return b, nil
}

func (b *ChromeDPBackend) Name() string { return "chromedp" }

// run executes actions on the tab, bounded by the per-action timeout and by
// ctx. Caller must hold mu.
func (b *ChromeDPBackend) run(ctx context.Context, actions ...chromedp.Action) error {
	if b.tabCtx == nil {
		return domain.NewDomainError("ChromeDPBackend.run", domain.ErrBackendUnavailable, "browser is closed")
	}
	tctx, cancel := context.WithTimeout(b.tabCtx, b.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(tctx, actions...)
	if err != nil && ctx.Err() != nil {
		return domain.Aborted("ChromeDPBackend.run", context.Cause(ctx))
	}
	return err
}

func (b *ChromeDPBackend) Navigate(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
}

func (b *ChromeDPBackend) GetContent(ctx context.Context, selector string) (*PageContent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	domTarget := "document.body"
	if selector != "" {
		domTarget = fmt.Sprintf("document.querySelector(%q)", selector)
	}

	var result string
	if err := b.run(ctx, chromedp.Evaluate(contentExtractionJS(domTarget), &result)); err != nil {
		return nil, domain.WrapOp("get content", err)
	}

	var pc PageContent
	if err := json.Unmarshal([]byte(result), &pc); err != nil {
		pc.Text = result
	}
	return &pc, nil
}

func (b *ChromeDPBackend) captureJPEG(ctx context.Context, fullPage bool, quality int) ([]byte, error) {
	var buf []byte
	var action chromedp.Action
	if fullPage {
		action = chromedp.FullScreenshot(&buf, quality)
	} else {
		q := int64(quality)
		action = chromedp.ActionFunc(func(actx context.Context) error {
			data, err := page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatJpeg).
				WithQuality(q).
				Do(actx)
			if err != nil {
				return err
			}
			buf = data
			return nil
		})
	}
	if err := b.run(ctx, action); err != nil {
		return nil, err
	}
	return buf, nil
}

// Screenshot lowers JPEG quality until the image fits maxScreenshotBase64.
// If even the lowest quality is too large, that capture is returned anyway.
func (b *ChromeDPBackend) Screenshot(ctx context.Context, fullPage bool) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var encoded string
	for _, quality := range screenshotQualities {
		buf, err := b.captureJPEG(ctx, fullPage, quality)
		if err != nil {
			return "", domain.WrapOp("screenshot", err)
		}
		encoded = base64.StdEncoding.EncodeToString(buf)
		if len(encoded) <= maxScreenshotBase64 {
			return encoded, nil
		}
		b.logger.Debug("browser: screenshot too large, reducing quality",
			"quality", quality, "base64_len", len(encoded))
	}
	return encoded, nil
}

func (b *ChromeDPBackend) Click(ctx context.Context, selector string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

func (b *ChromeDPBackend) Type(ctx context.Context, selector string, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

func (b *ChromeDPBackend) Evaluate(ctx context.Context, expression string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result any
	if err := b.run(ctx, chromedp.Evaluate(expression, &result)); err != nil {
		return "", domain.WrapOp("evaluate", err)
	}

	switch v := result.(type) {
	case string:
		return v, nil
	case nil:
		return "undefined", nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v), nil
		}
		return string(data), nil
	}
}

func (b *ChromeDPBackend) WaitVisible(ctx context.Context, selector string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (b *ChromeDPBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tabCancel != nil {
		b.tabCancel()
	}
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.tabCtx = nil
	b.logger.Info("browser: closed")
	return nil
}
