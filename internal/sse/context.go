package sse

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// RequestContext carries the identity and knobs of one SSE request.
// Message IDs group related events: one ID covers one reason-act cycle
// (its thinking, text, and tool events), and the loop mints a fresh ID at
// the start of each cycle. Orders are strictly increasing from 1 across
// the whole response.
type RequestContext struct {
	SessionID      string
	RequestID      string
	AgentType      string
	SkillList      []string
	ToolList       []string
	WorkflowList   []string
	Stream         bool
	EnableThinking bool

	mu        sync.Mutex
	order     int
	messageID string
}

// NewRequestContext builds the context for a parsed request. The request
// ID is the client's; one is minted only when the request carries none.
func NewRequestContext(req *Request) *RequestContext {
	stream := true
	if req.Stream != nil {
		stream = *req.Stream
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = newID()
	}
	return &RequestContext{
		SessionID:      req.SessionID,
		RequestID:      requestID,
		AgentType:      req.AgentType,
		SkillList:      req.SkillList,
		ToolList:       req.ToolList,
		WorkflowList:   req.WorkflowList,
		Stream:         stream,
		EnableThinking: req.EnableThinking,
	}
}

// SessionKey returns the agent session key for this request.
func (rc *RequestContext) SessionKey() string {
	return "sse:" + rc.SessionID
}

// NewMessageID mints and installs a fresh message ID, starting a new event
// group.
func (rc *RequestContext) NewMessageID() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.messageID = newID()
	return rc.messageID
}

// CurrentMessageID returns the active message ID, minting one lazily.
func (rc *RequestContext) CurrentMessageID() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.messageID == "" {
		rc.messageID = newID()
	}
	return rc.messageID
}

// NextOrder returns the next message order, starting at 1.
func (rc *RequestContext) NextOrder() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.order++
	return rc.order
}

// newID returns a 16-character hex identifier.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
