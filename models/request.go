package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// SubscribeRequest asks for one unified channel on one venue.
type SubscribeRequest struct {
	CorrelationID string            `json:"correlationId"`
	Exchange      Exchange          `json:"exchange"`
	Channel       Channel           `json:"channel"`
	Symbols       []string          `json:"symbols"`
	Interval      string            `json:"interval,omitempty"`
	Depth         *int              `json:"depth,omitempty"`
	Options       map[string]string `json:"options,omitempty"`
}

// UnsubscribeRequest has the same shape as SubscribeRequest.
type UnsubscribeRequest SubscribeRequest

// RequestOption customizes a request built by NewSubscribeRequest.
type RequestOption func(*SubscribeRequest)

func WithInterval(interval string) RequestOption {
	return func(r *SubscribeRequest) { r.Interval = interval }
}

func WithDepth(depth int) RequestOption {
	return func(r *SubscribeRequest) { r.Depth = &depth }
}

func WithOption(key, value string) RequestOption {
	return func(r *SubscribeRequest) {
		if r.Options == nil {
			r.Options = make(map[string]string)
		}
		r.Options[key] = value
	}
}

func WithCorrelationID(id string) RequestOption {
	return func(r *SubscribeRequest) { r.CorrelationID = id }
}

// NewSubscribeRequest copies symbols so the caller's slice can be reused.
// A correlation id is generated when none is supplied.
func NewSubscribeRequest(ex Exchange, ch Channel, symbols []string, opts ...RequestOption) SubscribeRequest {
	req := SubscribeRequest{
		Exchange: ex,
		Channel:  ch,
		Symbols:  append([]string(nil), symbols...),
	}
	for _, opt := range opts {
		opt(&req)
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	return req
}

// Clone returns a deep copy.
func (r SubscribeRequest) Clone() SubscribeRequest {
	out := r
	out.Symbols = append([]string(nil), r.Symbols...)
	if r.Depth != nil {
		d := *r.Depth
		out.Depth = &d
	}
	if r.Options != nil {
		out.Options = make(map[string]string, len(r.Options))
		for k, v := range r.Options {
			out.Options[k] = v
		}
	}
	return out
}

// Unsubscribe builds the matching unsubscribe request with a fresh
// correlation id.
func (r SubscribeRequest) Unsubscribe() UnsubscribeRequest {
	out := UnsubscribeRequest(r.Clone())
	out.CorrelationID = uuid.NewString()
	return out
}

func (r SubscribeRequest) Key() SubscriptionKey { return KeyOf(r) }

func (r UnsubscribeRequest) Key() SubscriptionKey { return KeyOf(SubscribeRequest(r)) }

// Validate rejects requests no translator could act on.
func (r SubscribeRequest) Validate() error {
	if r.Exchange == "" {
		return fmt.Errorf("subscribe request %s: exchange is required", r.CorrelationID)
	}
	if _, ok := channels[r.Channel]; !ok {
		return fmt.Errorf("subscribe request %s: unknown channel %q", r.CorrelationID, r.Channel)
	}
	if !r.Channel.UserScoped() && r.Channel != ChannelAllMids && len(r.Symbols) == 0 {
		return fmt.Errorf("subscribe request %s: channel %s needs at least one symbol", r.CorrelationID, r.Channel)
	}
	if r.Depth != nil && *r.Depth <= 0 {
		return fmt.Errorf("subscribe request %s: depth must be positive", r.CorrelationID)
	}
	return nil
}

// SubscriptionKey identifies a desired stream. Two requests with the same
// key describe the same subscription.
type SubscriptionKey struct {
	Channel Channel
	Params  string
}

func (k SubscriptionKey) String() string { return string(k.Channel) + "|" + k.Params }

const accountParams = "account"

// KeyOf derives the key of a request. Account-wide channels collapse to a
// single key regardless of symbols; public channels key on the sorted,
// de-duplicated symbol set plus interval, depth and options.
func KeyOf(r SubscribeRequest) SubscriptionKey {
	if r.Channel.UserScoped() {
		return SubscriptionKey{Channel: r.Channel, Params: accountParams}
	}

	seen := make(map[string]struct{}, len(r.Symbols))
	symbols := make([]string, 0, len(r.Symbols))
	for _, s := range r.Symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var b strings.Builder
	b.WriteString("symbols=")
	b.WriteString(strings.Join(symbols, ","))
	if r.Interval != "" {
		b.WriteString(";interval=")
		b.WriteString(r.Interval)
	}
	if r.Depth != nil {
		fmt.Fprintf(&b, ";depth=%d", *r.Depth)
	}
	if len(r.Options) > 0 {
		keys := make([]string, 0, len(r.Options))
		for k := range r.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, ";%s=%s", k, r.Options[k])
		}
	}
	return SubscriptionKey{Channel: r.Channel, Params: b.String()}
}
