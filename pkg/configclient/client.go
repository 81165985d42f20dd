// Package configclient implements the post-provisioning configuration
// sequence: Config AppKey Add followed by Config Model App Bind, each
// device-key encrypted and acked with bounded retry. It is driven the
// same event-oriented way as pkg/provisioning.Session — Start/
// HandleResponse/Timeout return PDUs to send rather than blocking — so
// it fits a single-threaded cooperative scheduling model and is
// testable without a real clock.
package configclient

import (
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pion/logging"
	"github.com/sidusmesh/meshcore/pkg/meshpdu"
)

// Step is the client's current position in the AppKey Add -> Model App
// Bind sequence.
type Step int

const (
	StepIdle Step = iota
	StepAppKeyAddSent
	StepModelAppBindSent
	StepDone
	StepFailed
)

// retryInterval and maxRetries cap each step at 2 retries with a 1.5s
// backoff: a fixed interval repeated up to twice, modeled with
// cenkalti/backoff's ConstantBackOff rather than hand-rolled retry
// bookkeeping.
const retryInterval = 1500 * time.Millisecond
const maxRetries = 2

// StatusError reports a non-success status code from a Config response,
// or a step that timed out after exhausting its retries.
type StatusError struct {
	Step       Step
	StatusCode byte
	TimedOut   bool
}

func (e *StatusError) Error() string {
	if e.TimedOut {
		return "configclient: step timed out after retries"
	}
	return "configclient: non-success status code"
}

// Client drives the sequence for a single freshly provisioned device.
// It is not safe for concurrent use.
type Client struct {
	log logging.LeveledLogger

	out  meshpdu.Outbound
	seqs *meshpdu.Counter

	deviceKey   []byte
	dst         uint16
	ttl         uint8
	netKeyIndex uint16
	appKeyIndex uint16
	appKey      []byte

	step       Step
	backOff    backoff.BackOff
	lastPDUs   [][]byte
	failureErr error
}

// Config carries everything the client needs to run the sequence for
// one device.
type Config struct {
	Outbound    meshpdu.Outbound
	Sequence    *meshpdu.Counter
	DeviceKey   []byte
	Dst         uint16
	TTL         uint8
	NetKeyIndex uint16
	AppKeyIndex uint16
	AppKey      []byte

	LoggerFactory logging.LoggerFactory
}

// NewClient constructs a Client ready to have Start called on it.
func NewClient(cfg Config) *Client {
	var log logging.LeveledLogger
	if cfg.LoggerFactory != nil {
		log = cfg.LoggerFactory.NewLogger("configclient")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("configclient")
	}
	return &Client{
		log:         log,
		out:         cfg.Outbound,
		seqs:        cfg.Sequence,
		deviceKey:   cfg.DeviceKey,
		dst:         cfg.Dst,
		ttl:         cfg.TTL,
		netKeyIndex: cfg.NetKeyIndex,
		appKeyIndex: cfg.AppKeyIndex,
		appKey:      cfg.AppKey,
		step:        StepIdle,
	}
}

// State returns the client's current position in the sequence.
func (c *Client) State() Step { return c.step }

// Err returns the terminal failure, once State() == StepFailed.
func (c *Client) Err() error { return c.failureErr }

func (c *Client) newBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(retryInterval), maxRetries)
}

// Start builds and returns the AppKey Add PDU(s) to send, advancing to
// StepAppKeyAddSent. Every step's PDUs are built once and resent
// verbatim on retry: the sequence numbers they consumed stay valid, and
// a mesh network tolerates duplicate-looking retransmissions at this
// layer.
func (c *Client) Start() ([][]byte, error) {
	if c.step != StepIdle {
		return nil, ErrUnexpectedCall
	}
	params, err := buildAppKeyAddParams(c.netKeyIndex, c.appKeyIndex, c.appKey)
	if err != nil {
		return nil, err
	}
	pdus, err := c.out.BuildDeviceKeyMessage(c.deviceKey, c.seqs, c.dst, c.ttl, opAppKeyAdd, params)
	if err != nil {
		return nil, err
	}
	c.step = StepAppKeyAddSent
	c.backOff = c.newBackOff()
	c.lastPDUs = pdus
	return pdus, nil
}

// HandleResponse consumes a decrypted device-key access payload
// (opcode || parameters) delivered by the C5 inbound pipeline. It
// returns the next step's PDUs to send, or nil with done=true once the
// sequence completes. A payload whose opcode is not the status expected
// for the current step is ignored (nil, false, nil) so the caller keeps
// waiting. A non-success status code fails the client and is returned
// as a *StatusError.
func (c *Client) HandleResponse(access []byte) (next [][]byte, done bool, err error) {
	switch c.step {
	case StepAppKeyAddSent:
		if !matchesOpcode(access, opAppKeyStatus) {
			return nil, false, nil // not our response; caller should keep waiting
		}
		status, err := parseAppKeyStatus(access[len(opAppKeyStatus):])
		if err != nil {
			return nil, false, err
		}
		if status != StatusSuccess {
			return nil, false, c.fail(&StatusError{Step: c.step, StatusCode: status})
		}
		return c.sendModelAppBind()

	case StepModelAppBindSent:
		if !matchesOpcode(access, opModelAppStatus) {
			return nil, false, nil
		}
		status, err := parseModelAppStatus(access[len(opModelAppStatus):])
		if err != nil {
			return nil, false, err
		}
		if status != StatusSuccess {
			return nil, false, c.fail(&StatusError{Step: c.step, StatusCode: status})
		}
		c.step = StepDone
		return nil, true, nil

	default:
		return nil, false, ErrUnexpectedCall
	}
}

func (c *Client) sendModelAppBind() ([][]byte, bool, error) {
	params := buildModelAppBindParams(c.dst, c.appKeyIndex)
	pdus, err := c.out.BuildDeviceKeyMessage(c.deviceKey, c.seqs, c.dst, c.ttl, opModelAppBind, params)
	if err != nil {
		return nil, false, err
	}
	c.step = StepModelAppBindSent
	c.backOff = c.newBackOff()
	c.lastPDUs = pdus
	return pdus, false, nil
}

// Timeout is called by the owning driver when the current step's
// 1.5s response timer fires with no matching reply. It returns the same
// PDUs to resend, or a terminal *StatusError once retries are exhausted.
func (c *Client) Timeout() ([][]byte, error) {
	if c.step != StepAppKeyAddSent && c.step != StepModelAppBindSent {
		return nil, ErrUnexpectedCall
	}
	d := c.backOff.NextBackOff()
	if d == backoff.Stop {
		return nil, c.fail(&StatusError{Step: c.step, TimedOut: true})
	}
	c.log.Warnf("configclient: step %v timed out, retrying", c.step)
	return c.lastPDUs, nil
}

func (c *Client) fail(err error) error {
	c.step = StepFailed
	c.failureErr = err
	c.log.Errorf("configclient: %v", err)
	return err
}
