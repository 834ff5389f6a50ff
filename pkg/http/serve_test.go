package xhttp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func startTestEngine(t *testing.T, timeout time.Duration, extra ...MiddlewareFunc) *fasthttp.Client {
	t.Helper()
	e := CreateServer(func(o *ServerOption) {
		o.Name = "kryos-test"
		o.RequestTimeout = timeout
	})
	e.GET("/boom", func(ctx *RequestCtx) {
		panic("boom")
	})
	e.GET("/slow", func(ctx *RequestCtx) {
		time.Sleep(4 * timeout)
		ctx.SetStatusCode(StatusOK)
	})
	e.GET("/ok", func(ctx *RequestCtx) {
		ctx.SetStatusCode(StatusOK)
		ctx.SetBodyString("ok")
	})
	e.UseDefaults([]string{"*"}, extra...)
	e.DoRouting()

	ln := fasthttputil.NewInmemoryListener()
	go func() {
		_ = e.Serve(ln)
	}()
	t.Cleanup(func() {
		_ = e.Server.Shutdown()
	})

	return &fasthttp.Client{
		Dial: func(string) (net.Conn, error) {
			return ln.Dial()
		},
	}
}

func get(t *testing.T, c *fasthttp.Client, path string) (int, string, string) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://kryos.test" + path)
	require.NoError(t, c.DoTimeout(req, resp, 2*time.Second))
	return resp.StatusCode(), string(resp.Body()), string(resp.Header.Peek(HeaderRequestID))
}

func TestUseDefaults_RecoversHandlerPanic(t *testing.T) {
	c := startTestEngine(t, time.Second)

	code, body, rid := get(t, c, "/boom")
	assert.Equal(t, StatusInternalServerError, code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, body)
	assert.NotEmpty(t, rid)

	code, body, _ = get(t, c, "/ok")
	assert.Equal(t, StatusOK, code)
	assert.Equal(t, "ok", body)
}

func TestUseDefaults_Timeout(t *testing.T) {
	c := startTestEngine(t, 50*time.Millisecond)

	code, body, _ := get(t, c, "/slow")
	assert.Equal(t, StatusRequestTimeout, code)
	assert.Contains(t, body, "request timeout")
}

func TestUseDefaults_ExtraMiddlewareSeesRequest(t *testing.T) {
	seen := make(chan string, 1)
	observe := func(next RequestHandler) RequestHandler {
		return func(ctx *RequestCtx) {
			next(ctx)
			seen <- MatchedRoute(ctx)
		}
	}
	c := startTestEngine(t, time.Second, observe)

	code, _, _ := get(t, c, "/ok")
	assert.Equal(t, StatusOK, code)
	select {
	case route := <-seen:
		assert.Equal(t, "/ok", route)
	case <-time.After(time.Second):
		t.Fatal("middleware did not run")
	}
}

func TestUseDefaults_NotFoundIsJSON(t *testing.T) {
	c := startTestEngine(t, time.Second)

	code, body, _ := get(t, c, "/nope")
	assert.Equal(t, StatusNotFound, code)
	assert.JSONEq(t, `{"error":"Not Found"}`, body)
}
