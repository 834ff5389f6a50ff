package xhttp

import (
	"reflect"
	"runtime"
	"slices"
	"time"

	"github.com/kryos/kryos-api/pkg/logger"
	"github.com/valyala/fasthttp"
)

type RequestHeader = fasthttp.RequestHeader
type ResponseHeader = fasthttp.ResponseHeader
type Server = fasthttp.Server

type ServerOption struct {
	Name string

	// Upper bound on request body size. Media uploads go through the same
	// server, so this must cover the largest accepted file.
	MaxRequestBodySize int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration

	ReadBufferSize  int
	WriteBufferSize int
	Concurrency     int
	MaxConnsPerIP   int

	CompressionLevel int
	Logger           logger.Logger
}

var DefaultServerOption = ServerOption{
	Name:               "kryos-api",
	MaxRequestBodySize: 32 * 1024 * 1024,
	ReadTimeout:        30 * time.Second,
	WriteTimeout:       30 * time.Second,
	IdleTimeout:        10 * time.Second,
	RequestTimeout:     25 * time.Second,
	ReadBufferSize:     8 * 1024,
	WriteBufferSize:    4 * 1024,
	Concurrency:        10_000,
	MaxConnsPerIP:      1_000,
	CompressionLevel:   fasthttp.CompressBestSpeed,
}

type Engine struct {
	*Router
	*Server
	option ServerOption
	middle []MiddlewareFunc
}

func newServer(options ServerOption) *fasthttp.Server {
	lg := options.Logger
	if lg == nil {
		lg = logger.Default()
	}
	return &fasthttp.Server{
		Name:                         options.Name,
		Concurrency:                  options.Concurrency,
		ReadBufferSize:               options.ReadBufferSize,
		WriteBufferSize:              options.WriteBufferSize,
		ReadTimeout:                  options.ReadTimeout,
		WriteTimeout:                 options.WriteTimeout,
		IdleTimeout:                  options.IdleTimeout,
		MaxConnsPerIP:                options.MaxConnsPerIP,
		MaxRequestBodySize:           options.MaxRequestBodySize,
		TCPKeepalive:                 true,
		DisablePreParseMultipartForm: true,
		NoDefaultServerHeader:        true,
		CloseOnShutdown:              true,
		ErrorHandler: func(ctx *RequestCtx, err error) {
			logger.Warn("[xhttp] connection error", "error", err, "ip", ctx.RemoteIP().String())
		},
		Logger: lg,
	}
}

func NewServer(options ServerOption) *Engine {
	return &Engine{
		Server: newServer(options),
		Router: CreateDefaultRouter(),
		option: options,
	}
}

// CreateServer builds an engine from DefaultServerOption with the given
// overrides applied on top.
func CreateServer(overrides ...func(*ServerOption)) *Engine {
	opt := DefaultServerOption
	for _, o := range overrides {
		o(&opt)
	}
	return NewServer(opt)
}

func (e *Engine) ListenAndServe(addr string) error {
	e.DoRouting()
	logger.Info("[xhttp] server is listening", "addr", addr)
	return e.Server.ListenAndServe(addr)
}

// DoRouting installs the router as the server handler and wraps it with the
// registered middleware. The first middleware passed to Use runs outermost.
func (e *Engine) DoRouting() {
	for method, routes := range e.Router.List() {
		for _, r := range routes {
			logger.Debug("[xhttp] route registered", "method", method, "path", r)
		}
	}
	h := e.Router.Handler
	chain := slices.Clone(e.middle)
	slices.Reverse(chain)
	for _, m := range chain {
		h = m(h)
		logger.Debug("[xhttp] middleware registered", "name", runtime.FuncForPC(reflect.ValueOf(m).Pointer()).Name())
	}
	e.Server.Handler = h
}

// Handler returns the fully wrapped handler. Mostly useful for tests that
// drive the engine without a listener.
func (e *Engine) Handler() RequestHandler {
	if e.Server.Handler == nil {
		e.DoRouting()
	}
	return e.Server.Handler
}

// Use appends middleware to the chain run for every request.
func (e *Engine) Use(middleware MiddlewareFunc) {
	e.middle = append(e.middle, middleware)
}

// UseDefaults installs the api middleware chain. extra runs after the request
// logger. Timeout runs the router on its own goroutine, so Recover goes after
// it to stay on that goroutine.
func (e *Engine) UseDefaults(corsOrigins []string, extra ...MiddlewareFunc) {
	e.Use(RequestIDMiddleware)
	e.Use(CORSMiddleware(corsOrigins))
	e.Use(RequestLoggerMiddleware)
	for _, m := range extra {
		e.Use(m)
	}
	e.Use(CompressMiddleware(e.option.CompressionLevel))
	e.Use(TimeoutMiddleware(e.option.RequestTimeout))
	e.Use(RecoverMiddleware)
}

// Shutdown gracefully shuts down the server without interrupting active
// connections.
func (e *Engine) Shutdown() {
	logger.Info("[xhttp] server is shutting down")
	if err := e.Server.Shutdown(); err != nil {
		logger.Error("[xhttp] error while shutting down", "error", err)
	}
}
