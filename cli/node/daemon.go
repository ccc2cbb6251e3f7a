// This file contains the implementation of a client and a daemon talking
// through a UNIX socket.
//
// A client opens one connection per command and writes a single JSON request.
// The daemon answers with a stream of JSON replies, one per write of the
// action, and closes the connection when the action returns. A failed action
// ends the stream with an error reply.

package node

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/certkv"
	"go.dedis.ch/certkv/cli"
	"golang.org/x/xerrors"
)

// SocketName is the name of the socket file in the config folder.
const SocketName = "daemon.sock"

const ioTimeout = 30 * time.Second

const (
	replyOutput = "output"
	replyError  = "error"
)

var promCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "certkv_daemon_commands_total",
	Help: "number of commands received by the daemon by status",
}, []string{"status"})

func init() {
	certkv.PromCollectors = append(certkv.PromCollectors, promCommands)
}

// Request is the message of a client asking the daemon to execute an action.
type Request struct {
	Action uint16  `json:"action"`
	Flags  FlagSet `json:"flags"`
}

// reply is a message of the daemon to the client.
type reply struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// SocketClient opens a connection to a unix socket daemon to send commands.
//
// - implements node.Client
type socketClient struct {
	socketpath  string
	out         io.Writer
	dialTimeout time.Duration
	dialFn      func(network, addr string, timeout time.Duration) (net.Conn, error)
}

// Send implements node.Client. It sends the request to the daemon and prints
// every output to the writer of the client until the daemon closes the
// connection.
func (c socketClient) Send(req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return xerrors.Errorf("couldn't encode request: %v", err)
	}

	conn, err := c.dialFn("unix", c.socketpath, c.dialTimeout)
	if err != nil {
		return xerrors.Errorf("couldn't open connection: %v", err)
	}

	defer conn.Close()

	_, err = conn.Write(data)
	if err != nil {
		return xerrors.Errorf("couldn't write to daemon: %v", err)
	}

	return c.readReplies(json.NewDecoder(conn))
}

func (c socketClient) readReplies(dec *json.Decoder) error {
	for {
		var r reply

		err := dec.Decode(&r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return xerrors.Errorf("fail to decode reply: %v", err)
		}

		switch r.Kind {
		case replyError:
			return xerrors.New(r.Value)
		case replyOutput:
			fmt.Fprintln(c.out, r.Value)
		default:
			return xerrors.Errorf("unknown reply '%s'", r.Kind)
		}
	}
}

// SocketDaemon is a daemon using UNIX socket. The socket file is only
// accessible to the owner so that the filesystem decides who can send
// commands.
//
// - implements node.Daemon
type socketDaemon struct {
	wg        sync.WaitGroup
	closeOnce sync.Once

	logger      zerolog.Logger
	socketpath  string
	injector    Injector
	actions     *actionMap
	closing     chan struct{}
	readTimeout time.Duration
	listenFn    func(network, addr string) (net.Listener, error)
}

// Listen implements node.Daemon. It creates the socket file and accepts
// connections in the background until the daemon is closed.
func (d *socketDaemon) Listen() error {
	err := d.removeStaleSocket()
	if err != nil {
		return err
	}

	ln, err := d.listenFn("unix", d.socketpath)
	if err != nil {
		return xerrors.Errorf("couldn't bind socket: %v", err)
	}

	err = os.Chmod(d.socketpath, 0600)
	if err != nil {
		ln.Close()
		return xerrors.Errorf("couldn't restrict socket: %v", err)
	}

	d.wg.Add(2)

	go func() {
		defer d.wg.Done()

		<-d.closing
		ln.Close()
	}()

	go func() {
		defer d.wg.Done()

		d.acceptLoop(ln)
	}()

	return nil
}

func (d *socketDaemon) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-d.closing:
			default:
				d.logger.Err(err).Msg("daemon closed unexpectedly")
			}

			return
		}

		go d.handleConn(conn)
	}
}

// removeStaleSocket removes the socket file left by a daemon that didn't stop
// properly. It fails if a daemon is still answering.
func (d *socketDaemon) removeStaleSocket() error {
	_, err := os.Stat(d.socketpath)
	if err != nil {
		return nil
	}

	conn, err := net.DialTimeout("unix", d.socketpath, time.Second)
	if err == nil {
		conn.Close()
		return xerrors.Errorf("daemon already running at '%s'", d.socketpath)
	}

	d.logger.Warn().Str("path", d.socketpath).Msg("removing stale socket")

	err = os.Remove(d.socketpath)
	if err != nil {
		return xerrors.Errorf("couldn't remove stale socket: %v", err)
	}

	return nil
}

func (d *socketDaemon) handleConn(conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(d.readTimeout))

	var req Request

	err := json.NewDecoder(conn).Decode(&req)
	if err == io.EOF {
		// Nothing was sent, which is how the connectivity of the daemon is
		// tested.
		return
	}
	if err != nil {
		d.fail(conn, "malformed", xerrors.Errorf("malformed request: %v", err))
		return
	}

	action := d.actions.Get(req.Action)
	if action == nil {
		d.fail(conn, "unknown", xerrors.Errorf("unknown command '%d'", req.Action))
		return
	}

	if req.Flags == nil {
		req.Flags = FlagSet{}
	}

	logger := d.logger.With().
		Str("command", xid.New().String()).
		Uint16("action", req.Action).
		Logger()

	logger.Debug().Interface("flags", req.Flags).Msg("received command")

	start := time.Now()

	err = action.Execute(Context{
		Injector: d.injector,
		Flags:    req.Flags,
		Out:      newClientWriter(conn),
	})

	logger.Debug().Err(err).Dur("duration", time.Since(start)).Msg("command done")

	if err != nil {
		d.fail(conn, "failed", xerrors.Errorf("command error: %v", err))
		return
	}

	promCommands.WithLabelValues("ok").Inc()
}

// fail sends the error to the client, which makes the command fail with the
// message of the error.
func (d *socketDaemon) fail(conn net.Conn, status string, err error) {
	promCommands.WithLabelValues(status).Inc()

	err = json.NewEncoder(conn).Encode(reply{Kind: replyError, Value: err.Error()})
	if err != nil {
		d.logger.Warn().Err(err).Msg("connection to daemon has error")
	}
}

// Close implements node.Daemon. It stops accepting connections and waits for
// the background routines. It can be called multiple times.
func (d *socketDaemon) Close() error {
	d.closeOnce.Do(func() {
		close(d.closing)
	})

	d.wg.Wait()

	return nil
}

// clientWriter turns every write of an action into an output reply.
//
// - implements io.Writer
type clientWriter struct {
	enc *json.Encoder
}

func newClientWriter(w io.Writer) *clientWriter {
	return &clientWriter{
		enc: json.NewEncoder(w),
	}
}

// Write implements io.Writer.
func (w *clientWriter) Write(data []byte) (int, error) {
	err := w.enc.Encode(reply{Kind: replyOutput, Value: string(data)})
	if err != nil {
		return 0, xerrors.Errorf("while packing data: %v", err)
	}

	return len(data), nil
}

// SocketFactory creates the daemon and the clients of the socket in the
// config folder.
//
// - implements node.DaemonFactory
type socketFactory struct {
	injector Injector
	actions  *actionMap
	out      io.Writer
}

// ClientFromContext implements node.DaemonFactory.
func (f socketFactory) ClientFromContext(ctx cli.Flags) (Client, error) {
	client := socketClient{
		socketpath:  socketPath(ctx),
		out:         f.out,
		dialTimeout: ioTimeout,
		dialFn:      net.DialTimeout,
	}

	return client, nil
}

// DaemonFromContext implements node.DaemonFactory.
func (f socketFactory) DaemonFromContext(ctx cli.Flags) (Daemon, error) {
	path := socketPath(ctx)

	daemon := &socketDaemon{
		logger:      certkv.Logger.With().Str("daemon", path).Logger(),
		socketpath:  path,
		injector:    f.injector,
		actions:     f.actions,
		closing:     make(chan struct{}),
		readTimeout: ioTimeout,
		listenFn:    net.Listen,
	}

	return daemon, nil
}

func socketPath(ctx cli.Flags) string {
	return filepath.Join(ctx.Path("config"), SocketName)
}
