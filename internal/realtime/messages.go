// Package realtime fans live visitor activity out to dashboard connections
// and keeps the approximate count of visitors currently online.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"Mansoor88-6/site-analytics/internal/models"
)

// Event names on the wire
const (
	EventSubscribe        = "subscribeToAnalytics"
	EventUnsubscribe      = "unsubscribeFromAnalytics"
	EventRequestUpdate    = "requestAnalyticsUpdate"
	EventSubscribed       = "subscribed"
	EventAnalyticsUpdate  = "analyticsUpdate"
	EventVisitorActivity  = "visitorActivity"
	EventLiveVisitorCount = "liveVisitorCount"
	EventAnalyticsError   = "analyticsError"
)

var ErrUnknownEvent = errors.New("unknown event")

// envelope is the wire frame shared by both directions
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is a message sent by a dashboard client
type Inbound interface {
	inbound()
}

type SubscribeToAnalytics struct{}

type UnsubscribeFromAnalytics struct{}

// RequestAnalyticsUpdate asks for a freshly computed aggregate. An empty
// query selects the default period.
type RequestAnalyticsUpdate struct {
	Query models.AnalyticsQuery
}

func (SubscribeToAnalytics) inbound()     {}
func (UnsubscribeFromAnalytics) inbound() {}
func (RequestAnalyticsUpdate) inbound()   {}

// DecodeInbound parses a client frame
func DecodeInbound(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	switch env.Event {
	case EventSubscribe:
		return SubscribeToAnalytics{}, nil
	case EventUnsubscribe:
		return UnsubscribeFromAnalytics{}, nil
	case EventRequestUpdate:
		var msg RequestAnalyticsUpdate
		if len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, &msg.Query); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", env.Event, err)
			}
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// EncodeInbound builds a client frame
func EncodeInbound(msg Inbound) ([]byte, error) {
	switch m := msg.(type) {
	case SubscribeToAnalytics:
		return json.Marshal(envelope{Event: EventSubscribe})
	case UnsubscribeFromAnalytics:
		return json.Marshal(envelope{Event: EventUnsubscribe})
	case RequestAnalyticsUpdate:
		data, err := json.Marshal(m.Query)
		if err != nil {
			return nil, err
		}
		return json.Marshal(envelope{Event: EventRequestUpdate, Data: data})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, msg)
	}
}

// Outbound is a message sent to a dashboard client
type Outbound interface {
	event() string
	payload() any
}

// Subscribed acknowledges a subscription. Recent is oldest first.
type Subscribed struct {
	Recent []models.LiveActivity `json:"recent"`
	Count  int                   `json:"count"`
}

type AnalyticsUpdate struct {
	Aggregate *models.AnalyticsAggregate
}

type VisitorActivity struct {
	Activity models.LiveActivity
}

type LiveVisitorCount struct {
	Count int `json:"count"`
}

type AnalyticsError struct {
	Message string `json:"message"`
}

func (Subscribed) event() string       { return EventSubscribed }
func (AnalyticsUpdate) event() string  { return EventAnalyticsUpdate }
func (VisitorActivity) event() string  { return EventVisitorActivity }
func (LiveVisitorCount) event() string { return EventLiveVisitorCount }
func (AnalyticsError) event() string   { return EventAnalyticsError }

func (m Subscribed) payload() any       { return m }
func (m AnalyticsUpdate) payload() any  { return m.Aggregate }
func (m VisitorActivity) payload() any  { return m.Activity }
func (m LiveVisitorCount) payload() any { return m }
func (m AnalyticsError) payload() any   { return m }

// EncodeOutbound builds a server frame
func EncodeOutbound(msg Outbound) ([]byte, error) {
	data, err := json.Marshal(msg.payload())
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msg.event(), err)
	}
	return json.Marshal(envelope{Event: msg.event(), Data: data})
}

// DecodeOutbound parses a server frame
func DecodeOutbound(data []byte) (Outbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	var (
		msg    Outbound
		target any
	)
	switch env.Event {
	case EventSubscribed:
		m := &Subscribed{}
		msg, target = m, m
	case EventAnalyticsUpdate:
		m := &AnalyticsUpdate{Aggregate: &models.AnalyticsAggregate{}}
		msg, target = m, m.Aggregate
	case EventVisitorActivity:
		m := &VisitorActivity{}
		msg, target = m, &m.Activity
	case EventLiveVisitorCount:
		m := &LiveVisitorCount{}
		msg, target = m, m
	case EventAnalyticsError:
		m := &AnalyticsError{}
		msg, target = m, m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", env.Event, err)
		}
	}
	return deref(msg), nil
}

func deref(msg Outbound) Outbound {
	switch m := msg.(type) {
	case *Subscribed:
		return *m
	case *AnalyticsUpdate:
		return *m
	case *VisitorActivity:
		return *m
	case *LiveVisitorCount:
		return *m
	case *AnalyticsError:
		return *m
	}
	return msg
}
