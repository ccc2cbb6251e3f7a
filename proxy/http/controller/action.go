package controller

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.dedis.ch/certkv"
	"go.dedis.ch/certkv/cli/node"
	"go.dedis.ch/certkv/proxy"
	"go.dedis.ch/certkv/proxy/http"
	"golang.org/x/xerrors"
)

var (
	startTimeout = 10 * time.Second

	proxyFac = func(addr string) proxy.Proxy {
		return http.NewHTTP(addr)
	}

	registerer prometheus.Registerer = prometheus.DefaultRegisterer
)

type startAction struct{}

// Execute implements node.ActionTemplate. It starts and injects the proxy http
// server.
func (a startAction) Execute(ctx node.Context) error {
	var p proxy.Proxy

	err := ctx.Injector.Resolve(&p)
	if err == nil {
		return xerrors.Errorf("proxy already started on %v", p.GetAddr())
	}

	addr := ctx.Flags.String("clientaddr")

	p = proxyFac(addr)

	failed := make(chan interface{}, 1)

	go func() {
		defer func() {
			r := recover()
			if r != nil {
				failed <- r
			}
		}()

		p.Listen()
	}()

	deadline := time.Now().Add(startTimeout)
	for p.GetAddr() == nil && time.Now().Before(deadline) {
		select {
		case r := <-failed:
			return xerrors.Errorf("failed to start proxy server: %v", r)
		case <-time.After(10 * time.Millisecond):
		}
	}

	if p.GetAddr() == nil {
		return xerrors.Errorf("failed to start proxy server on '%s'", addr)
	}

	ctx.Injector.Inject(p)

	fmt.Fprintf(ctx.Out, "started proxy server on %s", p.GetAddr().String())

	return nil
}

type promAction struct{}

// Execute implements node.ActionTemplate. It registers the Prometheus handler.
func (a promAction) Execute(ctx node.Context) error {
	var p proxy.Proxy

	err := ctx.Injector.Resolve(&p)
	if err != nil {
		return xerrors.Errorf("failed to resolve the proxy: %v", err)
	}

	path := ctx.Flags.String("path")

	for _, c := range certkv.PromCollectors {
		err = registerer.Register(c)
		if err != nil {
			fmt.Fprintf(ctx.Out, "ERROR: failed to register: %v\n", err)
		}
	}

	p.RegisterHandler(path, promhttp.Handler().ServeHTTP)

	fmt.Fprintf(ctx.Out, "registered prometheus service on %q", path)

	return nil
}
