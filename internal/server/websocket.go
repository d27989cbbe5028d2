package server

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Iron-Ham/dsstar/internal/errors"
	"github.com/Iron-Ham/dsstar/internal/logging"
	"github.com/Iron-Ham/dsstar/internal/orchestrator"
	"github.com/Iron-Ham/dsstar/internal/session"
)

// Client actions
const (
	ActionStart  = "start"
	ActionCancel = "cancel"
)

// Server message types
const (
	TypeStart     = "start"
	TypeProgress  = "progress"
	TypeComplete  = "complete"
	TypeCancelled = "cancelled"
	TypeError     = "error"
)

const writeTimeout = 10 * time.Second

// Runner runs one session.
type Runner interface {
	RunWithState(ctx context.Context, query string, dataPaths []string, onStep orchestrator.StepFunc) (*session.State, error)
}

// SessionFactory builds the runner for one start request.
type SessionFactory func(sessionID string, overrides Overrides) (Runner, error)

// ClientMessage is a message sent by the websocket client
type ClientMessage struct {
	Action    string    `json:"action"`
	Query     string    `json:"query,omitempty"`
	DataFiles []string  `json:"data_files,omitempty"`
	Config    Overrides `json:"config,omitempty"`
}

// ServerMessage is a message sent to the websocket client
type ServerMessage struct {
	Type        string         `json:"type"`
	SessionID   string         `json:"session_id,omitempty"`
	Message     string         `json:"message,omitempty"`
	State       *session.State `json:"state,omitempty"`
	Iteration   *int           `json:"iteration,omitempty"`
	FinalAnswer *string        `json:"final_answer,omitempty"`
	ErrorType   string         `json:"error_type,omitempty"`
}

// safeConn serializes writes; gorilla connections allow one writer at a time.
type safeConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (sc *safeConn) send(msg ServerMessage) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	_ = sc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return sc.conn.WriteJSON(msg)
}

// queryConn is the per-connection protocol state
type queryConn struct {
	conn      *safeConn
	factory   SessionFactory
	sessionID string
	logger    *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (s *Server) query(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sessionID := uuid.NewString()
	q := &queryConn{
		conn:      &safeConn{conn: ws},
		factory:   s.factory,
		sessionID: sessionID,
		logger:    s.logger.WithSession(sessionID),
	}
	q.logger.Info("websocket client connected")

	ctx, cancel := context.WithCancel(context.Background())
	q.serve(ctx)

	// A disconnect cancels the running session; wait for it before closing.
	cancel()
	q.wg.Wait()
	_ = ws.Close()
	q.logger.Info("websocket client disconnected")
}

func (q *queryConn) serve(ctx context.Context) {
	for {
		_, data, err := q.conn.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			q.send(ServerMessage{Type: TypeError, Message: "Invalid message: " + err.Error()})
			continue
		}

		switch msg.Action {
		case ActionStart:
			q.start(ctx, msg)
		case ActionCancel:
			q.cancelRunning()
		default:
			q.send(ServerMessage{Type: TypeError, Message: "Unknown action: " + msg.Action})
		}
	}
}

func (q *queryConn) start(ctx context.Context, msg ClientMessage) {
	if strings.TrimSpace(msg.Query) == "" || len(msg.DataFiles) == 0 {
		q.send(ServerMessage{Type: TypeError, Message: "Query and data_files are required"})
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		q.send(ServerMessage{Type: TypeError, Message: "A query is already running"})
		return
	}

	runner, err := q.factory(q.sessionID, msg.Config)
	if err != nil {
		q.send(ServerMessage{Type: TypeError, Message: errors.UserMessage(err)})
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.send(ServerMessage{Type: TypeStart, SessionID: q.sessionID, Message: "Query execution started"})

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		result := q.run(runCtx, runner, msg)
		// Release the slot before replying so the client can start again
		// as soon as it sees the result.
		q.finish()
		q.send(result)
	}()
}

func (q *queryConn) run(ctx context.Context, runner Runner, msg ClientMessage) ServerMessage {
	q.logger.Info("query started", "query", msg.Query, "data_files", len(msg.DataFiles))

	state, err := runner.RunWithState(ctx, msg.Query, msg.DataFiles, func(st *session.State) {
		iteration := st.Iteration
		q.send(ServerMessage{Type: TypeProgress, State: st, Iteration: &iteration})
	})

	switch {
	case err != nil && errors.IsCancelled(err):
		q.logger.Info("query cancelled")
		return ServerMessage{Type: TypeCancelled, SessionID: q.sessionID, Message: "Query execution cancelled"}
	case err != nil:
		q.logger.Warn("query failed", "error", err)
		errType := "session"
		if errors.IsCapabilityFailure(err) {
			errType = "capability"
		}
		return ServerMessage{Type: TypeError, Message: "Execution failed: " + errors.UserMessage(err), ErrorType: errType}
	default:
		answer := state.FinalAnswer
		return ServerMessage{Type: TypeComplete, State: state, FinalAnswer: &answer}
	}
}

func (q *queryConn) finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
}

func (q *queryConn) cancelRunning() {
	q.mu.Lock()
	cancel := q.cancel
	q.mu.Unlock()

	if cancel != nil {
		// The session goroutine reports the cancellation once it unwinds.
		cancel()
		return
	}
	q.send(ServerMessage{Type: TypeCancelled, Message: "No query is running"})
}

func (q *queryConn) send(msg ServerMessage) {
	if err := q.conn.send(msg); err != nil {
		q.logger.Debug("websocket write failed", "type", msg.Type, "error", err)
	}
}
