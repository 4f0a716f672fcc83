package realtime

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"imovelhub_backend/internal/conversations/domain"
	"imovelhub_backend/internal/events"
	"imovelhub_backend/platform/logger"

	"github.com/google/uuid"
)

const tempIDPrefix = "tmp-"

const (
	defaultDebounce     = 50 * time.Millisecond
	defaultPollInterval = 15 * time.Second
)

// ConversationView is the inbox row the controller keeps per conversation.
type ConversationView struct {
	ID                uuid.UUID `json:"id"`
	Phone             string    `json:"phone"`
	Name              string    `json:"name"`
	LastMessageAt     time.Time `json:"lastMessageAt"`
	AutomationEnabled bool      `json:"automationEnabled"`
}

// MessageView is one message in the open conversation. IDs are strings so
// optimistic sends can carry a temporary id until the server acks them.
type MessageView struct {
	ID             string    `json:"id"`
	ConversationID uuid.UUID `json:"conversationId"`
	Direction      string    `json:"direction"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Store is the server the controller syncs against.
type Store interface {
	FetchConversations(ctx context.Context) ([]ConversationView, error)
	FetchMessages(ctx context.Context, conversationID uuid.UUID) ([]MessageView, error)
	Send(ctx context.Context, conversationID uuid.UUID, text string) (MessageView, error)
}

// Options tune the controller's sync behavior.
type Options struct {
	// Debounce collapses bursts of events for unknown conversations into a
	// single inbox refetch.
	Debounce time.Duration
	// PollInterval is the fallback re-sync period for missed pushes.
	PollInterval time.Duration
}

// Controller holds the inbox state for one staff session. All state is
// instance-owned; two controllers never share anything.
type Controller struct {
	store Store
	opts  Options
	log   *logger.Logger

	mu            sync.Mutex
	conversations []ConversationView
	open          uuid.UUID
	messages      []MessageView
	unread        map[uuid.UUID]int
	refetch       *time.Timer

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController creates a controller synced against store.
func NewController(store Store, opts Options, log *logger.Logger) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Controller{
		store:  store,
		opts:   opts,
		log:    log,
		unread: make(map[uuid.UUID]int),
	}
}

// Start loads the inbox and begins the fallback poll loop.
func (c *Controller) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.runCtx = runCtx
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.refetchConversations(runCtx); err != nil {
		cancel()
		return err
	}

	c.wg.Add(1)
	go c.pollLoop(runCtx)
	return nil
}

// Close stops the poll loop and pending refetches.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.refetch != nil {
		c.refetch.Stop()
		c.refetch = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// Conversations returns a snapshot of the inbox, newest activity first.
func (c *Controller) Conversations() []ConversationView {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ConversationView, len(c.conversations))
	copy(out, c.conversations)
	return out
}

// Messages returns a snapshot of the open conversation's messages.
func (c *Controller) Messages() []MessageView {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MessageView, len(c.messages))
	copy(out, c.messages)
	return out
}

// Unread returns the unread counter for a conversation.
func (c *Controller) Unread(conversationID uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread[conversationID]
}

// Open selects a conversation, loads its messages and clears its unread
// counter.
func (c *Controller) Open(ctx context.Context, conversationID uuid.UUID) error {
	msgs, err := c.store.FetchMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}

	c.mu.Lock()
	c.open = conversationID
	c.messages = msgs
	delete(c.unread, conversationID)
	c.mu.Unlock()
	return nil
}

// Send delivers text on the open conversation. The message appears in the
// list immediately under a temporary id; the server ack replaces it in
// place, so the list never shows the same send twice.
func (c *Controller) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	target := c.open
	if target == uuid.Nil {
		c.mu.Unlock()
		return fmt.Errorf("no conversation open")
	}

	tmp := MessageView{
		ID:             tempIDPrefix + uuid.NewString(),
		ConversationID: target,
		Direction:      domain.DirectionOutbound,
		Content:        text,
		CreatedAt:      time.Now(),
	}
	c.messages = append(c.messages, tmp)
	c.bumpConversation(target, tmp.CreatedAt)
	c.mu.Unlock()

	ack, err := c.store.Send(ctx, target, text)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.dropMessage(tmp.ID)
		return fmt.Errorf("send message: %w", err)
	}
	c.mergeMessage(ack)
	return nil
}

// HandleMessageCreated applies a pushed message event.
func (c *Controller) HandleMessageCreated(ev events.MessageCreated) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.knownConversation(ev.ConversationID) {
		c.scheduleRefetch()
		return
	}

	c.bumpConversation(ev.ConversationID, ev.CreatedAt)

	if ev.ConversationID == c.open {
		c.mergeMessage(MessageView{
			ID:             ev.MessageID.String(),
			ConversationID: ev.ConversationID,
			Direction:      ev.Direction,
			Content:        ev.Content,
			CreatedAt:      ev.CreatedAt,
		})
		return
	}

	if ev.Direction == domain.DirectionInbound {
		c.unread[ev.ConversationID]++
	}
}

// HandleConversationUpdated applies a pushed conversation event.
func (c *Controller) HandleConversationUpdated(ev events.ConversationUpdated) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.conversations {
		if c.conversations[i].ID != ev.ConversationID {
			continue
		}
		c.conversations[i].AutomationEnabled = ev.AutomationEnabled
		if ev.LastMessageAt.After(c.conversations[i].LastMessageAt) {
			c.conversations[i].LastMessageAt = ev.LastMessageAt
		}
		c.sortConversations()
		return
	}
	c.scheduleRefetch()
}

// mergeMessage applies a server message, matching an existing entry by id
// first, then an optimistic send by temp-id prefix and identical content.
// Caller holds the lock.
func (c *Controller) mergeMessage(msg MessageView) {
	for i := range c.messages {
		if c.messages[i].ID == msg.ID {
			c.messages[i] = msg
			return
		}
	}
	if msg.Direction == domain.DirectionOutbound {
		for i := range c.messages {
			if strings.HasPrefix(c.messages[i].ID, tempIDPrefix) && c.messages[i].Content == msg.Content {
				c.messages[i] = msg
				return
			}
		}
	}
	c.messages = append(c.messages, msg)
}

func (c *Controller) dropMessage(id string) {
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return
		}
	}
}

func (c *Controller) knownConversation(id uuid.UUID) bool {
	for i := range c.conversations {
		if c.conversations[i].ID == id {
			return true
		}
	}
	return false
}

// bumpConversation moves a conversation up when new activity arrives.
// Caller holds the lock.
func (c *Controller) bumpConversation(id uuid.UUID, at time.Time) {
	for i := range c.conversations {
		if c.conversations[i].ID != id {
			continue
		}
		if at.After(c.conversations[i].LastMessageAt) {
			c.conversations[i].LastMessageAt = at
		}
		break
	}
	c.sortConversations()
}

func (c *Controller) sortConversations() {
	sort.SliceStable(c.conversations, func(i, j int) bool {
		return c.conversations[i].LastMessageAt.After(c.conversations[j].LastMessageAt)
	})
}

// scheduleRefetch collapses a burst of unknown-conversation events into one
// inbox refetch after the debounce window. Caller holds the lock.
func (c *Controller) scheduleRefetch() {
	if c.refetch != nil {
		c.refetch.Reset(c.opts.Debounce)
		return
	}
	ctx := c.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	c.refetch = time.AfterFunc(c.opts.Debounce, func() {
		c.mu.Lock()
		c.refetch = nil
		c.mu.Unlock()
		if err := c.refetchConversations(ctx); err != nil {
			c.log.Error("inbox refetch failed", "error", err)
		}
	})
}

// refetchConversations replaces the inbox with server state. Unread counters
// are client-side and survive the refetch.
func (c *Controller) refetchConversations(ctx context.Context) error {
	list, err := c.store.FetchConversations(ctx)
	if err != nil {
		return fmt.Errorf("fetch conversations: %w", err)
	}

	c.mu.Lock()
	c.conversations = list
	c.sortConversations()
	c.mu.Unlock()
	return nil
}

// pollLoop is the fallback sync for pushes lost to disconnects.
func (c *Controller) pollLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.refetchConversations(ctx); err != nil {
				c.log.Error("fallback poll failed", "error", err)
				continue
			}
			c.pollOpenMessages(ctx)
		}
	}
}

func (c *Controller) pollOpenMessages(ctx context.Context) {
	c.mu.Lock()
	target := c.open
	c.mu.Unlock()
	if target == uuid.Nil {
		return
	}

	msgs, err := c.store.FetchMessages(ctx, target)
	if err != nil {
		c.log.Error("fallback poll failed", "conversation_id", target, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open != target {
		return
	}
	// Optimistic sends the server has not acked yet survive the re-merge.
	var pending []MessageView
	for _, m := range c.messages {
		if strings.HasPrefix(m.ID, tempIDPrefix) && !containsOutbound(msgs, m.Content) {
			pending = append(pending, m)
		}
	}
	c.messages = append(msgs, pending...)
}

func containsOutbound(msgs []MessageView, content string) bool {
	for _, m := range msgs {
		if m.Direction == domain.DirectionOutbound && m.Content == content {
			return true
		}
	}
	return false
}
