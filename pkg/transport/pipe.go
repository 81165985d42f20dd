package transport

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// tickInterval drives the bridge's packet delivery: test.Bridge only
// moves a packet between its two conns when Tick is called, so a
// connected Pipe needs a background pump for Read to ever unblock.
const tickInterval = 1 * time.Millisecond

// Pipe is an in-memory duplex GATT link standing in for a real BLE
// connection, built on pion/transport/v3's test.Bridge.
// Unlike a raw net.Conn, GATT characteristic writes and
// notifications are already discrete PDUs, so each bridge Write/Read
// call here carries exactly one Proxy PDU — there is no stream framing
// to reimplement.
type Pipe struct {
	bridge *test.Bridge
	stopCh chan struct{}
	wg     sync.WaitGroup

	controller *pipeSession
	device     *pipeSession
}

// NewPipe creates a connected pair: call ControllerSession for the side
// the mesh protocol engine drives, and DeviceSession for the scripted
// peer side used in tests and the bundled simulator.
func NewPipe() *Pipe {
	bridge := test.NewBridge()
	p := &Pipe{bridge: bridge, stopCh: make(chan struct{})}
	p.controller = newPipeSession(bridge.GetConn0())
	p.device = newPipeSession(bridge.GetConn1())
	p.controller.start()
	p.device.start()
	p.wg.Add(1)
	go p.pump()
	return p
}

func (p *Pipe) pump() {
	defer p.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.bridge.Tick()
		}
	}
}

// ControllerSession returns the Session the mesh protocol engine should
// treat as its GATT link to the peer.
func (p *Pipe) ControllerSession() Session { return p.controller }

// DeviceSession returns the Session a scripted test peer uses to
// observe writes and send notifications back.
func (p *Pipe) DeviceSession() Session { return p.device }

// Close tears down both sides of the pipe and stops the delivery pump.
func (p *Pipe) Close() error {
	close(p.stopCh)
	p.wg.Wait()
	p.controller.Close()
	p.device.Close()
	return nil
}

// pipeSession wraps one bridge endpoint's net.Conn as a Session: writes
// go straight through (write-without-response), and a background
// goroutine delivers inbound packets to the registered NotifyFunc.
type pipeSession struct {
	conn io.ReadWriteCloser

	mu     sync.Mutex
	notify NotifyFunc
	closed bool
	done   chan struct{}
}

func newPipeSession(conn io.ReadWriteCloser) *pipeSession {
	return &pipeSession{conn: conn, done: make(chan struct{})}
}

func (s *pipeSession) start() {
	go s.readLoop()
}

func (s *pipeSession) readLoop() {
	buf := make([]byte, 512)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			return
		}
		pdu := append([]byte(nil), buf[:n]...)
		s.mu.Lock()
		fn := s.notify
		s.mu.Unlock()
		if fn != nil {
			fn(pdu)
		}
	}
}

func (s *pipeSession) Write(ctx context.Context, pdu []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	_, err := s.conn.Write(pdu)
	return err
}

func (s *pipeSession) OnNotify(fn NotifyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

func (s *pipeSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}

// PipeAdapter is an Adapter implementation that hands back the controller
// side of the in-memory Pipe registered for the requested Peer's Address,
// creating and registering a fresh Pipe when none is. It is the reference
// transport used by tests and examples/simulator.
type PipeAdapter struct {
	mu    sync.Mutex
	pipes map[string]*Pipe
}

// NewPipeAdapter creates an Adapter whose Open calls are satisfied by
// pipes pre-registered via Register — the simulated equivalent of a
// scan result already being in range.
func NewPipeAdapter() *PipeAdapter {
	return &PipeAdapter{pipes: make(map[string]*Pipe)}
}

// Register associates a Peer address with a Pipe so that a later Open
// call for that address returns the pipe's controller session. The
// caller retains the Pipe's device side to drive the scripted peer.
func (a *PipeAdapter) Register(address string, pipe *Pipe) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pipes[address] = pipe
}

func (a *PipeAdapter) Open(ctx context.Context, peer Peer, role Role) (Session, error) {
	a.mu.Lock()
	pipe, ok := a.pipes[peer.Address]
	a.mu.Unlock()
	if !ok {
		pipe = NewPipe()
		a.mu.Lock()
		a.pipes[peer.Address] = pipe
		a.mu.Unlock()
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return pipe.ControllerSession(), nil
}
