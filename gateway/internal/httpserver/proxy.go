package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"

	"github.com/Skotchmaster/checkout/pkg/logging"
)

const upstreamTimeout = 30 * time.Second

// upstream is one backend service. Routes share its connection pool and pick
// their own path prefix to strip.
type upstream struct {
	name  string
	proxy *httputil.ReverseProxy
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: upstreamTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func newUpstream(name, target string, transport http.RoundTripper) (*upstream, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &url.Error{Op: "parse", URL: target, Err: errors.New("upstream url needs scheme and host")}
	}

	p := httputil.NewSingleHostReverseProxy(u)
	p.Transport = transport
	p.FlushInterval = 100 * time.Millisecond

	origDirector := p.Director
	p.Director = func(req *http.Request) {
		originalHost := req.Host
		originalProto := "http"
		if req.TLS != nil {
			originalProto = "https"
		} else if xf := req.Header.Get("X-Forwarded-Proto"); xf != "" {
			originalProto = xf
		}

		origDirector(req)

		if req.Header.Get("X-Forwarded-Proto") == "" {
			req.Header.Set("X-Forwarded-Proto", originalProto)
		}
		if req.Header.Get("X-Forwarded-Host") == "" && originalHost != "" {
			req.Header.Set("X-Forwarded-Host", originalHost)
		}
	}

	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		l := logging.FromContext(r.Context()).With("upstream", name, "upstream_path", r.URL.Path)
		if errors.Is(err, context.Canceled) {
			l.Info("upstream_request_cancelled")
			return
		}
		l.Error("upstream_error", "status", http.StatusBadGateway, "error", err)
		w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"upstream unavailable"}` + "\n"))
	}

	return &upstream{name: name, proxy: p}, nil
}

// route forwards the request with stripPrefix removed from its path. The
// request id assigned at the edge travels with it.
func (u *upstream) route(stripPrefix string) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if rid := c.Response().Header().Get(echo.HeaderXRequestID); rid != "" && req.Header.Get(echo.HeaderXRequestID) == "" {
			req.Header.Set(echo.HeaderXRequestID, rid)
		}

		if stripPrefix != "" && strings.HasPrefix(req.URL.Path, stripPrefix) {
			out := req.Clone(req.Context())
			out.URL.Path = strings.TrimPrefix(req.URL.Path, stripPrefix)
			if rp := req.URL.RawPath; rp != "" && strings.HasPrefix(rp, stripPrefix) {
				out.URL.RawPath = strings.TrimPrefix(rp, stripPrefix)
			}
			req = out
		}

		u.proxy.ServeHTTP(c.Response(), req)
		return nil
	}
}
