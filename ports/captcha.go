package ports

import (
	"context"

	"github.com/layer-3/dripper/core"
)

// CaptchaSolver obtains a captcha proof for a page
type CaptchaSolver interface {
	Solve(ctx context.Context, siteKey, pageURL string) (core.CaptchaToken, error)
}
