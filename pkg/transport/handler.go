// Copyright 2025 Certen Protocol
//
// Handler wires one websocket connection to the Session Store and the
// node's crypto/inference collaborators. One Handler.Serve call runs for
// the lifetime of a connection; the read-pump/write-pump goroutines in
// connection.go do the socket I/O.

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/certen/independant-validator/pkg/cryptosession"
	"github.com/certen/independant-validator/pkg/inference"
	"github.com/certen/independant-validator/pkg/modelauth"
	"github.com/certen/independant-validator/pkg/session"
	"github.com/certen/independant-validator/pkg/storage"
)

// Per-connection resource limits (spec.md section 7's "resource errors").
// maxRequestBytes is well under connection.go's hard 1 MiB websocket read
// limit, which simply drops the connection; this is the graceful,
// client-visible REQUEST_TOO_LARGE path. The rate limit/burst values are
// generous defaults for a request-per-prompt protocol; override
// Handler.RateLimit/RateBurst/MaxRequestBytes before serving connections
// to tune them.
const (
	defaultRateLimit       = rate.Limit(5) // messages per second, per connection
	defaultRateBurst       = 10
	defaultMaxRequestBytes = 256 * 1024
)

// PromptRunner is the narrow contract Handler needs from whatever wires
// together the Inference Driver and Token Accountant for a prompt. It is
// intentionally the only cross-package dependency Handler takes beyond
// the Session Store and Crypto Layer, since inference/accounting are
// built on top of transport+session in the dependency order spec.md
// section 2 describes, not the other way around.
type PromptRunner interface {
	// RunPrompt streams generated tokens to emit and returns once
	// generation finishes (stop/length/cancelled/error). emit is called
	// once per token in strict generation order.
	RunPrompt(ctx context.Context, sess *session.Session, prompt string, messageIndex uint64, emit func(token string, index uint64)) (finishReason string, usage ContextUsage, err error)
}

// Handler serves transport connections against a shared Session Store.
type Handler struct {
	Sessions    *session.Store
	NodeKey     *cryptosession.NodeKey
	SessionKeys *cryptosession.SessionKeyStore
	Runner      PromptRunner
	Chains      map[uint64]bool
	Logger      *log.Logger

	// RateLimit/RateBurst bound inbound messages per connection;
	// MaxRequestBytes bounds a single message's size. Zero values take
	// the package defaults.
	RateLimit       rate.Limit
	RateBurst       int
	MaxRequestBytes int
}

// NewHandler constructs a Handler. logger may be nil, in which case a
// default bracketed-prefix logger is created.
func NewHandler(sessions *session.Store, nodeKey *cryptosession.NodeKey, sessionKeys *cryptosession.SessionKeyStore, runner PromptRunner, chains map[uint64]bool, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(log.Writer(), "[Transport] ", log.LstdFlags)
	}
	return &Handler{
		Sessions:        sessions,
		NodeKey:         nodeKey,
		SessionKeys:     sessionKeys,
		Runner:          runner,
		Chains:          chains,
		Logger:          logger,
		RateLimit:       defaultRateLimit,
		RateBurst:       defaultRateBurst,
		MaxRequestBytes: defaultMaxRequestBytes,
	}
}

// connState is the per-connection bookkeeping Serve needs across messages.
type connState struct {
	machine          *Machine
	sessionID        string
	nextMessageIndex uint64
	limiter          *rate.Limiter
}

// Serve runs the read/write pumps and dispatch loop for one connection
// until the client disconnects or the session ends. It blocks until the
// connection closes.
func (h *Handler) Serve(conn *Connection) {
	inbound := make(chan []byte, 32)
	go conn.readPump(inbound)
	go conn.writePump()
	defer conn.Close()

	limit, burst, maxBytes := h.RateLimit, h.RateBurst, h.MaxRequestBytes
	if limit == 0 {
		limit = defaultRateLimit
	}
	if burst == 0 {
		burst = defaultRateBurst
	}
	if maxBytes == 0 {
		maxBytes = defaultMaxRequestBytes
	}
	state := &connState{machine: NewMachine(), limiter: rate.NewLimiter(limit, burst)}

	for raw := range inbound {
		if len(raw) > maxBytes {
			conn.Send(ErrorMessage{
				Code:    CodeRequestTooLarge,
				Message: fmt.Sprintf("message of %d bytes exceeds the %d byte limit", len(raw), maxBytes),
			})
			continue
		}

		if reservation := state.limiter.Reserve(); !reservation.OK() || reservation.Delay() > 0 {
			delay := reservation.Delay()
			reservation.Cancel()
			conn.Send(ErrorMessage{
				Code:       CodeRateLimited,
				Message:    "rate limit exceeded",
				RetryAfter: int(math.Ceil(delay.Seconds())),
			})
			continue
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			conn.Send(ErrorMessage{Code: "INVALID_MESSAGE", Message: "message is not valid JSON"})
			continue
		}

		if err := h.dispatch(conn, state, env, raw); err != nil {
			h.Logger.Printf("session %s: %v", state.sessionID, err)
			conn.Send(ErrorMessage{
				Envelope: Envelope{Type: TypeError, SessionID: state.sessionID},
				Code:     classifyError(err),
				Message:  err.Error(),
			})
			state.machine.Recover()
		}

		if state.machine.Current() == StateClosing {
			h.closeSession(state)
			state.machine.Finalize()
			return
		}
	}
}

func (h *Handler) dispatch(conn *Connection, state *connState, env Envelope, raw []byte) error {
	if err := state.machine.Advance(env.Type); err != nil {
		return err
	}

	switch env.Type {
	case TypeSessionInit:
		var msg SessionInit
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("decode session_init: %w", err)
		}
		return h.handleSessionInit(conn, state, msg)

	case TypeEncryptedSessionInit:
		var msg EncryptedSessionInit
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("decode encrypted_session_init: %w", err)
		}
		return h.handleEncryptedSessionInit(conn, state, msg)

	case TypeSessionResume:
		var msg SessionResume
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("decode session_resume: %w", err)
		}
		return h.handleSessionResume(conn, state, msg)

	case TypePrompt:
		var msg Prompt
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("decode prompt: %w", err)
		}
		return h.handlePrompt(conn, state, msg)

	case TypeStreamCancel:
		return h.handleStreamCancel(state)

	case TypeSessionEnd:
		state.machine.ForceClose()
		return nil

	case TypeSearchVectors, TypeUploadVectors:
		// Vector store operations are delegated to the session's attached
		// collaborator; the core only needs to route them to the right
		// session (see session.VectorStore).
		return fmt.Errorf("vector store operations are not wired to a backend in this deployment")

	default:
		return fmt.Errorf("unknown message type %q", env.Type)
	}
}

func (h *Handler) handleSessionInit(conn *Connection, state *connState, msg SessionInit) error {
	if !h.Chains[msg.ChainID] {
		return session.ErrChainNotConfigured
	}
	sess, created, err := h.Sessions.EnsureExists(msg.SessionID, session.Config{}, msg.ChainID)
	if err != nil {
		return err
	}
	if created {
		sess.Mutate(func(s *session.Session) { s.JobID = msg.JobID })
	}
	state.sessionID = msg.SessionID
	return nil
}

func (h *Handler) handleEncryptedSessionInit(conn *Connection, state *connState, msg EncryptedSessionInit) error {
	result, err := handleEncryptedInit(&msg, h.NodeKey)
	if err != nil {
		return err
	}

	// Re-init policy: ensure_exists never clears history/vector store,
	// even when this is a key rotation for an existing session. A brand
	// new session cannot originate here: chain_id only ever arrives via
	// a plaintext session_init, so the session must already exist.
	if _, err := h.Sessions.Get(result.SessionID); err != nil {
		return fmt.Errorf("encrypted_session_init for unestablished session %s: %w", result.SessionID, err)
	}

	h.SessionKeys.Put(result.SessionID, result.SessionKey)
	state.sessionID = result.SessionID
	return nil
}

func (h *Handler) handleSessionResume(conn *Connection, state *connState, msg SessionResume) error {
	sess, err := h.Sessions.Get(msg.SessionID)
	if err != nil {
		return err
	}
	state.sessionID = msg.SessionID

	for i, m := range sess.ConversationHistory {
		if uint64(i) <= msg.LastMessageIndex {
			continue
		}
		conn.Send(ResponseToken{
			Envelope:     Envelope{Type: TypeResponseToken, SessionID: msg.SessionID},
			MessageIndex: uint64(i),
			Token:        m.Content,
		})
	}
	return nil
}

func (h *Handler) handlePrompt(conn *Connection, state *connState, msg Prompt) error {
	sess, err := h.Sessions.Get(msg.SessionID)
	if err != nil {
		return err
	}
	if msg.MessageIndex != state.nextMessageIndex && state.nextMessageIndex != 0 {
		return fmt.Errorf("message out of order: expected index %d, got %d", state.nextMessageIndex, msg.MessageIndex)
	}

	h.Sessions.Update(msg.SessionID, session.Message{
		Role:      session.RoleUser,
		Content:   msg.Content,
		Timestamp: time.Now(),
	})

	ctx := context.Background()
	finishReason, usage, err := h.Runner.RunPrompt(ctx, sess, msg.Content, msg.MessageIndex, func(token string, index uint64) {
		conn.Send(ResponseToken{
			Envelope:     Envelope{Type: TypeResponseToken, SessionID: msg.SessionID},
			MessageIndex: index,
			Token:        token,
		})
		state.nextMessageIndex = index + 1
	})
	if err != nil {
		finishReason = "error"
	}

	conn.Send(ResponseEnd{
		Envelope:     Envelope{Type: TypeResponseEnd, SessionID: msg.SessionID},
		FinishReason: finishReason,
		ContextUsage: &usage,
	})
	// response_end returns the connection from Generating to Open, ready
	// for the next prompt.
	state.machine.Advance(TypeResponseEnd)
	return err
}

func (h *Handler) handleStreamCancel(state *connState) error {
	if state.sessionID == "" {
		return fmt.Errorf("stream_cancel received before a session is established")
	}
	sess, err := h.Sessions.Get(state.sessionID)
	if err != nil {
		return err
	}
	sess.SetCancel(true)
	return nil
}

func (h *Handler) closeSession(state *connState) {
	if state.sessionID == "" {
		return
	}
	if err := h.Sessions.End(state.sessionID); err != nil {
		h.Logger.Printf("error ending session %s: %v", state.sessionID, err)
	}
}

// classifyError maps an internal error to one of the stable client-visible
// codes from spec.md section 7. It walks the error chain with
// errors.As/errors.Is rather than comparing the top-level error by value,
// the same way pkg/settlement/classify.go's classifySubmitError recognizes
// wrapped chain errors, since every error reaching here has passed through
// at least one fmt.Errorf("...: %w", err) on its way up from the
// collaborator that produced it. Unrecognized errors fall back to a
// generic protocol error code rather than leaking internal detail.
func classifyError(err error) string {
	var overflow *inference.ContextOverflow
	switch {
	case errors.Is(err, session.ErrNotFound):
		return CodeSessionNotFound
	case errors.Is(err, session.ErrCapacityExceeded):
		return CodeCapacityExceeded
	case errors.Is(err, session.ErrChainNotConfigured):
		return CodeChainUnavailable
	case errors.As(err, &overflow):
		return CodeContextOverflow
	case errors.Is(err, modelauth.ErrHashMismatch),
		errors.Is(err, modelauth.ErrModelNotApproved),
		errors.Is(err, modelauth.ErrNodeNotAuthorized),
		errors.Is(err, modelauth.ErrUnauthorizedJobClaim),
		errors.Is(err, modelauth.ErrUnknownModel):
		return CodeModelNotAuthorized
	case errors.Is(err, storage.ErrUnavailable), errors.Is(err, storage.ErrNotFound):
		return CodeStorageUnavailable
	case errors.Is(err, cryptosession.ErrSignatureMismatch):
		return CodeInvalidSignature
	default:
		return "PROTOCOL_ERROR"
	}
}
