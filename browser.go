package gositemapextractor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Confirmer is the human-in-the-loop suspension point used by the browser
// tier. Confirm blocks until the operator signals the page is ready to
// capture or ctx is cancelled.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) error
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, prompt string) error

func (f ConfirmerFunc) Confirm(ctx context.Context, prompt string) error {
	return f(ctx, prompt)
}

const googlebotUserAgent = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

// stealthJS masks the automation fingerprint (webdriver flag, plugins,
// canvas, WebGL, audio) before any page script runs.
const stealthJS = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
Object.defineProperty(navigator, 'plugins', {get: () => [1,2,3,4,5]});
window.chrome = { runtime: {} };
Object.defineProperty(navigator, 'platform', {get: () => 'Win32'});
Object.defineProperty(navigator, 'userAgent', {get: () => navigator.userAgent.replace('HeadlessChrome', 'Chrome')});
const getContext = HTMLCanvasElement.prototype.getContext;
HTMLCanvasElement.prototype.getContext = function(type, ...args) {
    const context = getContext.apply(this, [type, ...args]);
    if (type === '2d') {
        const getImageData = context.getImageData;
        context.getImageData = function(...args) {
            const imageData = getImageData.apply(this, args);
            for (let i = 0; i < imageData.data.length; i += 4) {
                imageData.data[i] = imageData.data[i] ^ 0x12;
            }
            return imageData;
        };
    }
    return context;
};
const getParameter = WebGLRenderingContext.prototype.getParameter;
WebGLRenderingContext.prototype.getParameter = function(parameter) {
    if (parameter === 37445) return 'Intel Inc.';
    if (parameter === 37446) return 'Intel Iris OpenGL Engine';
    return getParameter.apply(this, [parameter]);
};
const getChannelData = AudioBuffer.prototype.getChannelData;
AudioBuffer.prototype.getChannelData = function() {
    const data = getChannelData.apply(this, arguments);
    for (let i = 0; i < data.length; i += 100) {
        data[i] = data[i] + 0.0001;
    }
    return data;
};
delete navigator.__proto__.permissions;
window.navigator.permissions = {
    query: (parameters) => {
        return Promise.resolve({ state: parameters.name === 'notifications' ? 'denied' : 'granted' });
    }
};
Object.defineProperty(window, 'outerWidth', {get: () => window.innerWidth});
Object.defineProperty(window, 'outerHeight', {get: () => window.innerHeight});
`

// captureJS pulls the raw XML back out of the rendered document: Chrome
// wraps XML responses in its viewer, plain-text responses in a pre element.
const captureJS = `(() => {
	const viewer = document.getElementById('webkit-xml-viewer-source-xml');
	if (viewer && viewer.innerHTML) {
		return viewer.innerHTML;
	}
	const pre = document.querySelector('pre');
	if (pre && pre.textContent) {
		return pre.textContent;
	}
	return document.documentElement.outerHTML;
})()`

// ===================== Browser Tier =====================

// browserTier opens a visible Chrome window so the operator can clear
// challenges by hand, then captures the sitemap once confirmed. It is the
// last resort of the fallback chain and blocks until confirmation or
// cancellation.
type browserTier struct {
	e *Extractor
	// capture is swappable so the chain can be exercised without Chrome.
	capture func(ctx context.Context, loc *url.URL) (string, error)
}

func (t *browserTier) name() Tier {
	return TierBrowser
}

func (t *browserTier) attempt(ctx context.Context, loc *url.URL, st *fetchState) ([]byte, error) {
	e := t.e
	if e.opts.Confirmer == nil {
		e.logger.Warn("browser tier enabled without a confirmer, skipping")
		return nil, nil
	}
	st.attempts++

	content, err := t.capture(ctx, loc)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil, &ErrCancelled{Err: err}
		}
		var cancelled *ErrCancelled
		if errors.As(err, &cancelled) {
			return nil, err
		}
		st.lastNetErr = err
		e.logger.Warn(fmt.Sprintf("browser capture for %s failed: %v", loc, err))
		return nil, nil
	}

	st.gotResponse = true
	data := []byte(content)
	if looksLikeXML(data) {
		return data, nil
	}
	if extracted := extractXMLFromHTML(content); extracted != "" {
		return []byte(extracted), nil
	}
	if len(strings.TrimSpace(content)) > 0 {
		st.transferred = true
		st.contentType = "text/html"
	}
	e.logger.Warn(fmt.Sprintf("browser capture for %s did not contain sitemap XML", loc))
	return nil, nil
}

// runBrowser drives the interactive Chrome session: stealth script first,
// navigate (failures are tolerated since challenge pages often break the
// load event), scroll, wait for the operator, capture.
func (t *browserTier) runBrowser(ctx context.Context, loc *url.URL) (string, error) {
	e := t.e

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(e.opts.BrowserUserAgent),
		chromedp.WindowSize(1280, 800),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealthJS).Do(ctx)
		return err
	}))
	if err != nil {
		return "", err
	}

	if err := chromedp.Run(browserCtx, chromedp.Navigate(loc.String())); err != nil {
		e.logger.Warn(fmt.Sprintf("browser navigation to %s failed: %v (window stays open for manual retry)", loc, err))
	} else {
		_ = chromedp.Run(browserCtx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
	}

	prompt := fmt.Sprintf("Interact with the browser window until the sitemap for %s is visible, then confirm to capture it.", loc)
	if err := e.opts.Confirmer.Confirm(ctx, prompt); err != nil {
		return "", err
	}

	var content string
	if err := chromedp.Run(browserCtx, chromedp.Evaluate(captureJS, &content)); err != nil {
		return "", err
	}
	return content, nil
}

// extractXMLFromHTML digs sitemap markup out of a captured HTML wrapper,
// covering captures taken with outerHTML instead of the viewer source.
func extractXMLFromHTML(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}
	if viewer := doc.Find("#webkit-xml-viewer-source-xml"); viewer.Length() > 0 {
		if markup, err := viewer.Html(); err == nil && strings.TrimSpace(markup) != "" {
			return strings.TrimSpace(markup)
		}
	}
	if pre := doc.Find("pre").First(); pre.Length() > 0 {
		text := strings.TrimSpace(pre.Text())
		if looksLikeXML([]byte(text)) {
			return text
		}
	}
	return ""
}
