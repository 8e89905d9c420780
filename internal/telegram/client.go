// Package telegram implements the platform client on top of the MTProto
// client from github.com/gotd/td.
package telegram

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Log-Tools/telegram-ingest/internal/config"
	"github.com/Log-Tools/telegram-ingest/internal/platform"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// ErrNotConnected is returned by API calls made before Authenticate succeeded.
var ErrNotConnected = errors.New("telegram client is not connected")

// CodePrompt asks the operator for the login code sent by Telegram.
type CodePrompt func(ctx context.Context) (string, error)

// Options configures the client
type Options struct {
	Phone       string
	Password    string
	SessionFile string
	Logger      *slog.Logger

	// CodePrompt defaults to reading a line from stdin
	CodePrompt CodePrompt

	// ShutdownTimeout bounds the wait for the connection to close
	ShutdownTimeout time.Duration
}

// Client is a platform.Client backed by a single MTProto connection.
type Client struct {
	opts   Options
	client *telegram.Client
	logger *slog.Logger
	store  *entityStore

	mu         sync.RWMutex
	api        *tg.Client
	cancel     context.CancelFunc
	done       chan error
	subscribed map[int64]struct{}
	handler    platform.EventHandler

	dialogsMu     sync.Mutex
	dialogsLoaded bool
}

var _ platform.Client = (*Client)(nil)

// New creates a client for the given application credentials. No network
// activity happens until Authenticate.
func New(creds config.Credentials, opts Options) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CodePrompt == nil {
		opts.CodePrompt = stdinPrompt(os.Stdin, os.Stderr)
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.SessionFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.SessionFile), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	c := &Client{
		opts:   opts,
		logger: opts.Logger.With(slog.String("component", "telegram")),
		store:  newEntityStore(),
		done:   make(chan error, 1),
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		c.handleMessage(ctx, e, u.Message)
		return nil
	})
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		c.handleMessage(ctx, e, u.Message)
		return nil
	})

	tgOpts := telegram.Options{UpdateHandler: dispatcher}
	if opts.SessionFile != "" {
		tgOpts.SessionStorage = &session.FileStorage{Path: opts.SessionFile}
	}

	c.client = telegram.NewClient(creds.APIID, creds.APIHash, tgOpts)
	return c, nil
}

// Authenticate connects and logs in, reusing the session file when it holds
// a valid authorization. The connection stays open until
// RunUntilDisconnected returns.
func (c *Client) Authenticate(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	codeAuth := auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
		return c.opts.CodePrompt(ctx)
	})
	flow := auth.NewFlow(auth.Constant(c.opts.Phone, c.opts.Password, codeAuth), auth.SendCodeOptions{})

	ready := make(chan struct{})
	go func() {
		c.done <- c.client.Run(runCtx, func(ctx context.Context) error {
			if err := c.client.Auth().IfNecessary(ctx, flow); err != nil {
				return &platform.AuthError{Err: err}
			}
			self, err := c.client.Self(ctx)
			if err != nil {
				return &platform.AuthError{Err: err}
			}

			c.mu.Lock()
			c.api = c.client.API()
			c.mu.Unlock()

			c.logger.Info("✅ authorized", slog.Int64("user_id", self.ID), slog.String("username", self.Username))
			close(ready)

			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-ready:
		return nil
	case err := <-c.done:
		cancel()
		var authErr *platform.AuthError
		if errors.As(err, &authErr) {
			return err
		}
		return &platform.AuthError{Err: err}
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// ResolveEntity turns a configured reference into a chat entity. Invite
// links are accepted on resolution, since the chat id is unknown until then.
func (c *Client) ResolveEntity(ctx context.Context, ref platform.ChannelRef) (platform.Entity, error) {
	api, err := c.apiClient()
	if err != nil {
		return platform.Entity{}, err
	}

	switch ref.Kind {
	case platform.RefUsername:
		return c.resolveUsername(ctx, api, ref.Username)
	case platform.RefInvite:
		return c.resolveInvite(ctx, api, ref.InviteHash)
	case platform.RefID:
		return c.resolveID(ctx, api, ref.ID)
	default:
		return platform.Entity{}, fmt.Errorf("unsupported channel reference %q", ref.Raw)
	}
}

func (c *Client) resolveUsername(ctx context.Context, api *tg.Client, username string) (platform.Entity, error) {
	res, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return platform.Entity{}, mapError(err)
	}
	c.store.rememberChats(res.Chats)

	var id int64
	switch p := res.Peer.(type) {
	case *tg.PeerChannel:
		id = p.ChannelID
	case *tg.PeerChat:
		id = p.ChatID
	default:
		return platform.Entity{}, fmt.Errorf("%w: @%s is not a channel or group", platform.ErrNotFound, username)
	}

	stored, ok := c.store.get(id)
	if !ok {
		return platform.Entity{}, fmt.Errorf("%w: @%s resolved without chat data", platform.ErrNotFound, username)
	}
	return stored.entity, nil
}

func (c *Client) resolveInvite(ctx context.Context, api *tg.Client, hash string) (platform.Entity, error) {
	invite, err := api.MessagesCheckChatInvite(ctx, hash)
	if err != nil {
		return platform.Entity{}, mapError(err)
	}

	switch inv := invite.(type) {
	case *tg.ChatInviteAlready:
		return c.entityFromChat(inv.Chat)
	case *tg.ChatInvitePeek:
		return c.entityFromChat(inv.Chat)
	}

	updates, err := api.MessagesImportChatInvite(ctx, hash)
	if err != nil && !alreadyMember(err) {
		return platform.Entity{}, mapError(err)
	}
	chats := chatsOf(updates)
	if len(chats) == 0 {
		return platform.Entity{}, fmt.Errorf("%w: invite %s returned no chat", platform.ErrNotFound, hash)
	}
	return c.entityFromChat(chats[0])
}

func (c *Client) resolveID(ctx context.Context, api *tg.Client, raw int64) (platform.Entity, error) {
	id := unmarkID(raw)
	if stored, ok := c.store.get(id); ok {
		return stored.entity, nil
	}

	// Channels addressed by id need an access hash, which only the
	// dialog list provides for chats the account has not seen yet
	if err := c.loadDialogs(ctx, api); err != nil {
		return platform.Entity{}, err
	}
	if stored, ok := c.store.get(id); ok {
		return stored.entity, nil
	}
	return platform.Entity{}, fmt.Errorf("%w: id %d is not in the account's dialogs", platform.ErrNotFound, raw)
}

func (c *Client) loadDialogs(ctx context.Context, api *tg.Client) error {
	c.dialogsMu.Lock()
	defer c.dialogsMu.Unlock()
	if c.dialogsLoaded {
		return nil
	}

	seen, err := c.pageDialogs(ctx, api.MessagesGetDialogs)
	if err != nil {
		return err
	}
	c.dialogsLoaded = true
	c.logger.Debug("loaded dialogs", slog.Int("dialogs", seen), slog.Int("known_chats", c.store.len()))
	return nil
}

// pageDialogs walks the dialog list page by page, remembering every chat it
// carries, and returns the number of dialogs seen.
func (c *Client) pageDialogs(ctx context.Context, fetch func(context.Context, *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error)) (int, error) {
	var (
		offset dialogsOffset
		seen   int
	)
	for i := 0; i < maxDialogPages; i++ {
		res, err := fetch(ctx, offset.request())
		if err != nil {
			return seen, mapError(err)
		}

		page := dialogsPageOf(res, seen)
		c.store.rememberChats(page.chats)
		seen += len(page.dialogs)
		if page.last {
			return seen, nil
		}

		next, ok := nextDialogsOffset(page)
		if !ok || (next.id == offset.id && next.date == offset.date) {
			return seen, nil
		}
		offset = next
	}

	c.logger.Warn("⚠️ dialog listing truncated", slog.Int("pages", maxDialogPages), slog.Int("dialogs", seen))
	return seen, nil
}

func (c *Client) entityFromChat(chat tg.ChatClass) (platform.Entity, error) {
	p, ok := peerFromChat(chat)
	if !ok {
		return platform.Entity{}, fmt.Errorf("%w: unsupported chat type %T", platform.ErrNotFound, chat)
	}
	c.store.put(p)
	return p.entity, nil
}

// Join makes the account a member of a resolved channel. Joining a channel
// the account already belongs to succeeds.
func (c *Client) Join(ctx context.Context, entity platform.Entity) error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}

	stored, ok := c.store.get(entity.ID)
	if !ok {
		return fmt.Errorf("%w: channel %d was not resolved", platform.ErrNotFound, entity.ID)
	}
	if !stored.channel {
		// Legacy groups are only reachable by members
		return nil
	}

	updates, err := api.ChannelsJoinChannel(ctx, &tg.InputChannel{
		ChannelID:  stored.entity.ID,
		AccessHash: stored.accessHash,
	})
	if err != nil {
		if alreadyMember(err) {
			return nil
		}
		return mapError(err)
	}
	c.store.rememberChats(chatsOf(updates))
	return nil
}

// LookupEntity returns the chat with the given id, fetching it if it has not
// been seen in any response or update.
func (c *Client) LookupEntity(ctx context.Context, id int64) (platform.Entity, error) {
	id = absID(id)
	if stored, ok := c.store.get(id); ok {
		return stored.entity, nil
	}

	api, err := c.apiClient()
	if err != nil {
		return platform.Entity{}, err
	}
	res, err := api.MessagesGetChats(ctx, []int64{id})
	if err != nil {
		return platform.Entity{}, mapError(err)
	}
	c.store.rememberChats(res.GetChats())

	if stored, ok := c.store.get(id); ok {
		return stored.entity, nil
	}
	return platform.Entity{}, fmt.Errorf("%w: chat %d", platform.ErrNotFound, id)
}

// Subscribe routes new messages from the given chats to handler. Messages
// from any other chat are ignored.
func (c *Client) Subscribe(channelIDs []int64, handler platform.EventHandler) error {
	if handler == nil {
		return errors.New("nil event handler")
	}
	set := make(map[int64]struct{}, len(channelIDs))
	for _, id := range channelIDs {
		set[absID(id)] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = set
	c.handler = handler
	return nil
}

// RunUntilDisconnected blocks until the connection drops or ctx is cancelled.
func (c *Client) RunUntilDisconnected(ctx context.Context) error {
	select {
	case err := <-c.done:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-ctx.Done():
		c.mu.RLock()
		cancel := c.cancel
		c.mu.RUnlock()
		if cancel != nil {
			cancel()
		}
		select {
		case <-c.done:
		case <-time.After(c.opts.ShutdownTimeout):
			c.logger.Warn("⚠️ telegram connection did not close in time")
		}
		return ctx.Err()
	}
}

func (c *Client) handleMessage(ctx context.Context, e tg.Entities, m tg.MessageClass) {
	c.store.rememberEntities(e)

	ev, ok := buildEvent(e, m)
	if !ok {
		return
	}

	c.mu.RLock()
	handler := c.handler
	_, subscribed := c.subscribed[absID(ev.Chat.ID)]
	c.mu.RUnlock()

	if handler == nil || !subscribed {
		return
	}
	handler(ctx, ev)
}

func (c *Client) apiClient() (*tg.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.api == nil {
		return nil, ErrNotConnected
	}
	return c.api, nil
}

// stdinPrompt reads the login code from r after printing a prompt to w.
func stdinPrompt(r io.Reader, w io.Writer) CodePrompt {
	reader := bufio.NewReader(r)
	return func(ctx context.Context) (string, error) {
		fmt.Fprint(w, "Enter the code Telegram sent you: ")
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("failed to read login code: %w", err)
		}
		code := strings.TrimSpace(line)
		if code == "" {
			return "", errors.New("empty login code")
		}
		return code, nil
	}
}
