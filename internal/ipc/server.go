package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"devmirror/internal/ledger"
	"devmirror/internal/logging"
	"devmirror/internal/supervisor"
)

const serviceName = "DevMirror"

// requestTimeout bounds how long one RPC waits on the supervisor.
const requestTimeout = 15 * time.Second

// Target handles forwarded requests. *supervisor.Supervisor satisfies it.
type Target interface {
	Devices(ctx context.Context) ([]supervisor.DeviceStatus, error)
	Restart(ctx context.Context, id string) error
	Quit(ctx context.Context) error
	History(ctx context.Context, device string, limit int) ([]ledger.Event, error)
}

// Info describes the running daemon for Status.
type Info struct {
	SessionID string
	PID       int
	StartedAt time.Time
}

// Server exposes supervisor control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, target Target, info Info, logger *slog.Logger) (*Server, error) {
	if target == nil {
		return nil, errors.New("ipc server requires a target")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	svc := &service{target: target, info: info, socket: path, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(serviceName, svc); err != nil {
		cancel()
		_ = listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart devmirror if needed"),
				)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				stop := context.AfterFunc(s.ctx, func() { _ = c.Close() })
				defer stop()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.once.Do(func() {
		s.cancel()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.wg.Wait()
		if err := os.RemoveAll(s.path); err != nil {
			logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
				logging.String("socket", s.path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale IPC socket may confuse clients"),
				logging.String(logging.FieldErrorHint, "remove the socket file manually"),
			)
		}
	})
}

type service struct {
	target Target
	info   Info
	socket string
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) request(method string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(s.ctx, requestTimeout)
	ctx = logging.WithRequestID(ctx, uuid.NewString())
	s.logger.DebugContext(ctx, "ipc request", logging.String("method", method))
	return ctx, cancel
}

func (s *service) Devices(_ DevicesRequest, resp *DevicesResponse) error {
	ctx, cancel := s.request("Devices")
	defer cancel()
	statuses, err := s.target.Devices(ctx)
	if err != nil {
		return err
	}
	resp.Devices = make([]Device, 0, len(statuses))
	for _, st := range statuses {
		resp.Devices = append(resp.Devices, Device(st))
	}
	return nil
}

func (s *service) Restart(req RestartRequest, resp *RestartResponse) error {
	ctx, cancel := s.request("Restart")
	defer cancel()
	if req.ID == "" {
		return errors.New("restart requires a device id")
	}
	if err := s.target.Restart(ctx, req.ID); err != nil {
		return err
	}
	resp.Queued = true
	s.logger.InfoContext(ctx, "restart requested via IPC",
		logging.String(logging.FieldEventType, "ipc_restart"),
		logging.Device(req.ID),
	)
	return nil
}

func (s *service) Quit(_ QuitRequest, resp *QuitResponse) error {
	ctx, cancel := s.request("Quit")
	defer cancel()
	if err := s.target.Quit(ctx); err != nil && !errors.Is(err, supervisor.ErrStopped) {
		return err
	}
	resp.Stopping = true
	s.logger.InfoContext(ctx, "quit requested via IPC",
		logging.String(logging.FieldEventType, "ipc_quit"),
	)
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	ctx, cancel := s.request("History")
	defer cancel()
	events, err := s.target.History(ctx, req.Device, req.Limit)
	if err != nil {
		return err
	}
	resp.Events = make([]Event, 0, len(events))
	for _, ev := range events {
		resp.Events = append(resp.Events, Event{
			Seq:    ev.Seq,
			At:     ev.At,
			Device: ev.Device,
			Kind:   string(ev.Kind),
			Detail: ev.Detail,
		})
	}
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	ctx, cancel := s.request("Status")
	defer cancel()
	statuses, err := s.target.Devices(ctx)
	if err != nil {
		return err
	}
	resp.SessionID = s.info.SessionID
	resp.PID = s.info.PID
	resp.StartedAt = s.info.StartedAt
	resp.Socket = s.socket
	resp.Devices = len(statuses)
	for _, st := range statuses {
		if st.Mirroring {
			resp.Mirroring++
		}
	}
	return nil
}
