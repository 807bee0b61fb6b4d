package bedreport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bedwatch-backend/internal/components/telemetry"
	"bedwatch-backend/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

const (
	report_fetcher_fetch = "fetcher.fetch"
)

// DefaultUrl is the MJPJAY public bed availability report.
const DefaultUrl = "https://www.jeevandayee.gov.in/MJPJAY/FrontServlet?requestType=PublicViewsRH&actionVal=ViewBedInfoForDisease&City=x%20&Disease=-1&DataFlag=true&DfltHospList=Reports"

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Fetcher retrieves the raw upstream document.
//
// note: fault injection point
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type FetcherOptions struct {
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// Retries is the amount of attempts made after the first one.
	Retries int
	// RetryWait and RetryMaxWait bound the exponential backoff between attempts.
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	UserAgent    string
	// CloudflareBypass wraps the transport with browser-like TLS and headers.
	CloudflareBypass bool
	// Dump receives every upstream exchange when set.
	Dump restyutil.Output
}

func (o FetcherOptions) withDefaults() FetcherOptions {
	if o.Timeout <= 0 {
		o.Timeout = time.Second * 30
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryWait <= 0 {
		o.RetryWait = time.Millisecond * 500
	}
	if o.RetryMaxWait < o.RetryWait {
		o.RetryMaxWait = o.RetryWait * 10
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	return o
}

// HttpFetcher is the resty implementation of Fetcher.
type HttpFetcher struct {
	http *resty.Client
	tel  telemetry.API
}

func NewHttpFetcher(opts FetcherOptions, tel telemetry.API) HttpFetcher {
	opts = opts.withDefaults()
	tel = telemetry.NewScopedAPI("bedreport", tel)

	client := resty.New()
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	client.SetHeader("user-agent", opts.UserAgent)
	client.SetTimeout(opts.Timeout)
	client.SetRetryCount(opts.Retries)
	client.SetRetryWaitTime(opts.RetryWait)
	client.SetRetryMaxWaitTime(opts.RetryMaxWait)
	client.AddRetryCondition(isTransient)

	telemetry.InstrumentResty(client, "bedwatch/bedreport/http", tel)
	restyutil.DumpExchanges(client, opts.Dump)

	return HttpFetcher{http: client, tel: tel}
}

// isTransient retries network failures and 5xx responses, 4xx responses and a cancelled
// context are final.
func isTransient(res *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return res != nil && res.StatusCode() >= http.StatusInternalServerError
}

func (f HttpFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	res, err := f.http.R().
		SetContext(ctx).
		Get(url)

	attempts := 1
	if res != nil && res.Request != nil && res.Request.Attempt > 0 {
		attempts = res.Request.Attempt
	}

	if err != nil {
		fetchErr := &FetchError{Url: url, Attempts: attempts, Cause: err}
		f.tel.ReportBroken(report_fetcher_fetch, fetchErr)
		return nil, fetchErr
	}
	if !res.IsSuccess() {
		fetchErr := &FetchError{
			Url:      url,
			Status:   res.StatusCode(),
			Attempts: attempts,
			Cause:    errors.New(res.Status()),
		}
		f.tel.ReportBroken(report_fetcher_fetch, fetchErr)
		return nil, fetchErr
	}

	f.tel.ReportDebug("fetched document", url, len(res.Body()), telemetry.KV{Key: "attempts", Value: attempts})
	return res.Body(), nil
}
