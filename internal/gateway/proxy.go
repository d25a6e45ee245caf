package gateway

import (
	"io"
	"net/http"
	"strings"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/authclient"
	"github.com/labstack/echo/v4"
)

// Headers only meaningful for a single connection, see RFC 9110 section 7.6.1
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// noCredentials middleware removes the credentials the browser may send, the gateway injects
// its own. It runs after the session middleware has read the session cookie.
func noCredentials(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Request().Header.Del(echo.HeaderAuthorization)
		c.Request().Header.Del(echo.HeaderCookie)
		return next(c)
	}
}

// forward sends the request to the rental API through the authenticated client and copies the
// answer back.
func (g *Gateway) forward(c echo.Context) error {
	client, err := g.sessionClient(c)
	if err != nil {
		return err
	}
	in := c.Request()
	target := client.BaseURL()
	target.Path = strings.TrimSuffix(target.Path, "/") + "/" + strings.TrimPrefix(c.Param("*"), "/")
	target.RawPath = ""
	target.RawQuery = in.URL.RawQuery

	out, err := http.NewRequestWithContext(in.Context(), in.Method, target.String(), in.Body)
	if err != nil {
		return err
	}
	out.ContentLength = in.ContentLength
	copyHeader(out.Header, in.Header)
	if id := requestID(c); id != "" {
		out.Header.Set(authclient.HeaderRequestID, id)
	}

	res, err := client.Do(out)
	if err != nil {
		return g.clientError(c, err)
	}
	defer res.Body.Close()
	copyHeader(c.Response().Header(), res.Header)
	c.Response().WriteHeader(res.StatusCode)
	_, err = io.Copy(c.Response(), res.Body)
	return err
}

func copyHeader(dst, src http.Header) {
	for key, values := range src {
		dst[key] = append([]string(nil), values...)
	}
	for _, key := range hopHeaders {
		dst.Del(key)
	}
	for _, key := range strings.Split(src.Get("Connection"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			dst.Del(key)
		}
	}
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
