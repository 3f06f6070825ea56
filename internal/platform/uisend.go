package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/rs/zerolog/log"

	"github.com/guestsync/internal/logging"
	"github.com/guestsync/internal/session"
	"github.com/guestsync/internal/syncerrors"
)

// Sender is the resilient "type into the remote page and click send"
// operator used when the browser-automation channel is chosen. It
// manipulates a third party's unversioned UI, so every interaction is a
// ranked list of matching strategies with explicit fallthrough, never a
// single hard-coded locator.
type Sender struct {
	browserOpts     session.BrowserOptions
	navigateTimeout time.Duration
	elementTimeout  time.Duration
}

// NewSender creates a UI sender with per-stage timeouts.
func NewSender(opts session.BrowserOptions, navigateTimeout, elementTimeout time.Duration) *Sender {
	if navigateTimeout <= 0 {
		navigateTimeout = 45 * time.Second
	}
	if elementTimeout <= 0 {
		elementTimeout = 10 * time.Second
	}
	return &Sender{
		browserOpts:     opts,
		navigateTimeout: navigateTimeout,
		elementTimeout:  elementTimeout,
	}
}

// SendOutcome reports a UI send. Verified=false with Success=true means the
// send action completed but the rendered thread could not confirm it;
// retrying those would risk duplicate sends, which are worse than an
// unverified success.
type SendOutcome struct {
	Success   bool
	Verified  bool
	MessageID *string
}

// locatorStrategy is one ranked attempt at finding a page element. The
// order and stop condition are data, not branching logic.
type locatorStrategy struct {
	name     string
	selector string
}

var composerStrategies = []locatorStrategy{
	{"test_hook", `[data-testid*="composer"] textarea, [data-testid*="message-input"], textarea[data-qa*="composer"]`},
	{"semantic", `textarea[placeholder*="essage"], [role="textbox"][contenteditable="true"], textarea[aria-label*="essage"]`},
	{"structural", `form textarea, form [contenteditable="true"]`},
}

var sendControlStrategies = []locatorStrategy{
	{"test_hook", `[data-testid*="send"], button[data-qa*="send"]`},
	{"accessible_name", `button[aria-label*="end" i], button[title*="end" i]`},
	{"submit", `form button[type="submit"], form input[type="submit"]`},
}

const composerMark = "composer"
const sendControlMark = "send"

// Send delivers reply text into the thread view for a numeric thread id.
// Stages:
//
//	A: navigate, failing fast on login redirects (session expiry)
//	B: locate the composer via ranked strategies, excluding buttons
//	C: set the content, direct value assignment first, keystrokes second
//	D: locate the send control via ranked strategies, Enter-key fallback
//	E: best-effort verification against the rendered thread
func (s *Sender) Send(ctx context.Context, sess *session.Session, numericThreadID int64, text string, passLog *logging.SyncLogger) (*SendOutcome, error) {
	browser, err := sess.Browser(s.browserOpts)
	if err != nil {
		return nil, &syncerrors.SendError{Stage: syncerrors.StageNavigate, Err: err}
	}
	bctx := browser.Context()

	// Stage A: navigate to the thread view.
	threadURL := sess.BaseURL.String() + "/hosting/messages/" + fmt.Sprintf("%d", numericThreadID)
	var location string
	if err := s.run(ctx, bctx, s.navigateTimeout,
		chromedp.Navigate(threadURL),
		chromedp.WaitReady("body"),
		chromedp.Location(&location),
	); err != nil {
		return nil, s.stageFailure(bctx, syncerrors.StageNavigate, err)
	}
	if looksLikeLoginPage(location) {
		passLog.Log("navigation landed on login surface: %s", location)
		return nil, &syncerrors.SendError{
			Stage:    syncerrors.StageNavigate,
			Location: location,
			Err:      syncerrors.ErrSessionExpired,
		}
	}

	// Stage B: locate the message composer.
	composerStrategy, err := s.locate(ctx, bctx, composerStrategies, composerMark, true, passLog)
	if err != nil {
		return nil, s.stageFailure(bctx, syncerrors.StageLocateInput, err)
	}
	passLog.LogStrategyMatch("composer", composerStrategy, 1)

	// Stage C: set the reply text.
	if err := s.setContent(ctx, bctx, text, passLog); err != nil {
		return nil, s.stageFailure(bctx, syncerrors.StageSetContent, err)
	}

	// Stage D: trigger the send.
	sendStrategy, locateErr := s.locate(ctx, bctx, sendControlStrategies, sendControlMark, false, passLog)
	if locateErr == nil {
		passLog.LogStrategyMatch("send control", sendStrategy, 1)
		err = s.run(ctx, bctx, s.elementTimeout, chromedp.Click(markSelector(sendControlMark), chromedp.ByQuery))
	} else {
		// No recognizable send control; commit through the composer itself.
		passLog.Log("no send control found, falling back to composer commit key")
		err = s.run(ctx, bctx, s.elementTimeout, chromedp.SendKeys(markSelector(composerMark), kb.Enter, chromedp.ByQuery))
	}
	if err != nil {
		return nil, s.stageFailure(bctx, sendFailureStage(locateErr == nil), err)
	}

	// Stage E: opportunistic verification. Once Stage D completed without
	// error the send counts as success; a failed check only clears Verified.
	outcome := &SendOutcome{Success: true}
	if s.verify(ctx, bctx, text) {
		outcome.Verified = true
	} else {
		passLog.Log("sent text not observed in rendered thread; reporting unverified success")
		log.Warn().Int64("thread_id", numericThreadID).Msg("UI send unverified")
	}
	return outcome, nil
}

// locate tries each strategy in order; the first yielding exactly one
// visible candidate (non-button, when excludeButtons) wins and is tagged
// with a marker attribute for later targeting.
func (s *Sender) locate(ctx context.Context, bctx context.Context, strategies []locatorStrategy, mark string, excludeButtons bool, passLog *logging.SyncLogger) (string, error) {
	for _, strategy := range strategies {
		js := locateScript(strategy.selector, mark, excludeButtons)
		var count int
		if err := s.run(ctx, bctx, s.elementTimeout, chromedp.Evaluate(js, &count)); err != nil {
			passLog.Log("strategy %q errored: %v", strategy.name, err)
			continue
		}
		if count == 1 {
			return strategy.name, nil
		}
		passLog.Log("strategy %q yielded %d candidates, trying next", strategy.name, count)
	}
	return "", fmt.Errorf("no strategy located a unique %s", mark)
}

// setContent prefers direct value assignment with a synthetic input event;
// frameworks that reject programmatic assignment get simulated keystrokes.
func (s *Sender) setContent(ctx context.Context, bctx context.Context, text string, passLog *logging.SyncLogger) error {
	var assigned bool
	js := assignScript(text)
	if err := s.run(ctx, bctx, s.elementTimeout, chromedp.Evaluate(js, &assigned)); err == nil && assigned {
		return nil
	}

	passLog.Log("direct value assignment rejected, falling back to keystrokes")
	return s.run(ctx, bctx, s.elementTimeout,
		chromedp.Click(markSelector(composerMark), chromedp.ByQuery),
		chromedp.SendKeys(markSelector(composerMark), text, chromedp.ByQuery),
	)
}

// verify polls briefly for the sent text in the rendered thread.
func (s *Sender) verify(ctx context.Context, bctx context.Context, text string) bool {
	probe := text
	if len(probe) > 80 {
		probe = probe[:80]
	}
	js := fmt.Sprintf(`document.body && document.body.innerText.includes(%q)`, probe)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var present bool
		if err := s.run(ctx, bctx, s.elementTimeout, chromedp.Evaluate(js, &present)); err == nil && present {
			return true
		}
		time.Sleep(500 * time.Millisecond)
	}
	return false
}

// stageFailure decorates an error with page diagnostics so operators can
// tell "page structure changed" from "transient load failure". Callers see
// one error kind either way.
func (s *Sender) stageFailure(bctx context.Context, stage syncerrors.SendStage, err error) error {
	var location, title string
	diagCtx, cancel := context.WithTimeout(bctx, 3*time.Second)
	_ = chromedp.Run(diagCtx, chromedp.Location(&location), chromedp.Title(&title))
	cancel()

	return &syncerrors.SendError{
		Stage:     stage,
		Location:  location,
		PageTitle: title,
		Err:       err,
	}
}

// run executes chromedp actions under both the caller's context and a
// per-stage timeout. A timed-out stage fails that stage only.
func (s *Sender) run(ctx context.Context, bctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(bctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// sendFailureStage separates "control vanished" from "click rejected": a
// failure after a successful locate is a commit failure, not a locate one.
func sendFailureStage(located bool) syncerrors.SendStage {
	if located {
		return syncerrors.StageCommitSend
	}
	return syncerrors.StageLocateSend
}

func markSelector(mark string) string {
	return fmt.Sprintf(`[data-gsync-target=%q]`, mark)
}

func looksLikeLoginPage(location string) bool {
	lower := strings.ToLower(location)
	return strings.Contains(lower, "/login") || strings.Contains(lower, "/signin") || strings.Contains(lower, "/authenticate")
}

// locateScript finds visible candidates for a selector, tags a unique match
// with the marker attribute, and returns the candidate count.
func locateScript(selector, mark string, excludeButtons bool) string {
	return fmt.Sprintf(`(() => {
	document.querySelectorAll('[data-gsync-target=%q]').forEach(el => el.removeAttribute('data-gsync-target'));
	const candidates = Array.from(document.querySelectorAll(%q)).filter(el => {
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) return false;
		const style = window.getComputedStyle(el);
		if (style.visibility === 'hidden' || style.display === 'none') return false;
		if (%t && (el.tagName === 'BUTTON' || el.getAttribute('role') === 'button' || el.type === 'button' || el.type === 'submit')) return false;
		return true;
	});
	if (candidates.length === 1) {
		candidates[0].setAttribute('data-gsync-target', %q);
	}
	return candidates.length;
})()`, mark, selector, excludeButtons, mark)
}

// assignScript sets the composer content directly and fires an input event
// so framework-bound composers notice the change.
func assignScript(text string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector('[data-gsync-target=%q]');
	if (!el) return false;
	if (el.isContentEditable) {
		el.textContent = %q;
	} else {
		const proto = el.tagName === 'TEXTAREA' ? window.HTMLTextAreaElement.prototype : window.HTMLInputElement.prototype;
		const setter = Object.getOwnPropertyDescriptor(proto, 'value');
		if (setter && setter.set) { setter.set.call(el, %q); } else { el.value = %q; }
	}
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return (el.value === %q) || (el.textContent === %q);
})()`, composerMark, text, text, text, text, text)
}
