package gmail

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inboxdigest/internal/google"
)

const (
	user = "me"

	// Header names fetched with message metadata.
	headerFrom            = "From"
	headerSubject         = "Subject"
	headerDate            = "Date"
	headerListUnsubscribe = "List-Unsubscribe"

	pageSize     = 100
	fetchWorkers = 16
)

// MetadataHeaders is the header set fetched by ListMessages.
var MetadataHeaders = []string{headerFrom, headerSubject, headerDate, headerListUnsubscribe}

// Client wraps the Gmail Users service for a single account.
type Client struct {
	svc     *gmail.UsersService
	account string
	web     *http.Client

	labelsMu sync.Mutex
	labelIDs map[string]string // lower-cased name -> id
}

// NewClient wraps an existing Gmail service.
func NewClient(svc *gmail.Service, account string) *Client {
	return &Client{
		svc:     svc.Users,
		account: account,
		web:     &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientForAccount creates a client authorized with the stored token for
// account.
func NewClientForAccount(ctx context.Context, cfg *oauth2.Config, account string) (*Client, error) {
	httpClient, err := google.GetHTTPClientForAccount(ctx, cfg, account)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", google.GetAuthenticationErrorMessage(account), err)
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return NewClient(svc, account), nil
}

// Account returns the account name this client is associated with.
func (c *Client) Account() string {
	return c.account
}

// SetWebClient replaces the client used for unsubscribe requests.
func (c *Client) SetWebClient(hc *http.Client) {
	c.web = hc
}

// ListMessageIDs pages through messages matching q, returning at most max
// IDs. max <= 0 means no limit.
func (c *Client) ListMessageIDs(ctx context.Context, q string, max int64) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		size := int64(pageSize)
		if max > 0 {
			remaining := max - int64(len(ids))
			if remaining <= 0 {
				break
			}
			if remaining < size {
				size = remaining
			}
		}

		req := c.svc.Messages.List(user).Q(q).MaxResults(size).Context(ctx)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}
		res, err := req.Do()
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		for _, m := range res.Messages {
			ids = append(ids, m.Id)
		}

		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}

	if max > 0 && int64(len(ids)) > max {
		ids = ids[:max]
	}
	return ids, nil
}

// GetMessageMetadata fetches labels, snippet and MetadataHeaders for one
// message.
func (c *Client) GetMessageMetadata(ctx context.Context, id string) (*gmail.Message, error) {
	msg, err := c.svc.Messages.Get(user, id).
		Format("metadata").
		MetadataHeaders(MetadataHeaders...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return msg, nil
}

// ListMessages lists messages matching q and fetches their metadata with a
// bounded number of concurrent requests. The result keeps the list order.
func (c *Client) ListMessages(ctx context.Context, q string, max int64) ([]*gmail.Message, error) {
	ids, err := c.ListMessageIDs(ctx, q, max)
	if err != nil {
		return nil, err
	}

	msgs := make([]*gmail.Message, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	for i, id := range ids {
		g.Go(func() error {
			msg, err := c.GetMessageMetadata(gctx, id)
			if err != nil {
				return err
			}
			msgs[i] = msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ModifyMessage adds and removes label IDs on a message.
func (c *Client) ModifyMessage(ctx context.Context, id string, add, remove []string) error {
	_, err := c.svc.Messages.Modify(user, id, &gmail.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("modify message %s: %w", id, err)
	}
	return nil
}

// TrashMessage moves a message to the trash.
func (c *Client) TrashMessage(ctx context.Context, id string) error {
	if _, err := c.svc.Messages.Trash(user, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("trash message %s: %w", id, err)
	}
	return nil
}

// ListLabels returns all labels of the mailbox and refreshes the name
// lookup used by LabelID and EnsureLabel.
func (c *Client) ListLabels(ctx context.Context) ([]*gmail.Label, error) {
	res, err := c.svc.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}

	ids := make(map[string]string, len(res.Labels))
	for _, l := range res.Labels {
		ids[strings.ToLower(l.Name)] = l.Id
	}
	c.labelsMu.Lock()
	c.labelIDs = ids
	c.labelsMu.Unlock()

	return res.Labels, nil
}

// LabelID resolves a label name, case-insensitively. The second result is
// false when the mailbox has no such label.
func (c *Client) LabelID(ctx context.Context, name string) (string, bool, error) {
	if id, ok := c.cachedLabelID(name); ok {
		return id, true, nil
	}
	if _, err := c.ListLabels(ctx); err != nil {
		return "", false, err
	}
	id, ok := c.cachedLabelID(name)
	return id, ok, nil
}

// EnsureLabel resolves a label name, creating a user label when missing.
func (c *Client) EnsureLabel(ctx context.Context, name string) (string, error) {
	id, ok, err := c.LabelID(ctx, name)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}

	created, err := c.svc.Labels.Create(user, &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create label %q: %w", name, err)
	}

	c.labelsMu.Lock()
	if c.labelIDs == nil {
		c.labelIDs = make(map[string]string)
	}
	c.labelIDs[strings.ToLower(created.Name)] = created.Id
	c.labelsMu.Unlock()

	return created.Id, nil
}

func (c *Client) cachedLabelID(name string) (string, bool) {
	c.labelsMu.Lock()
	defer c.labelsMu.Unlock()
	id, ok := c.labelIDs[strings.ToLower(name)]
	return id, ok
}

// HeaderValue returns the first header named name, case-insensitively.
func HeaderValue(msg *gmail.Message, name string) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
