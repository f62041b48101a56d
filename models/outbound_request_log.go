package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the ISO-8601 layout used for StartTime and EndTime.
const TimeLayout = time.RFC3339Nano

// NameValues holds one header name with all of its values in original order.
type NameValues struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// OutboundRequestLog represents one completed outbound request/response exchange.
//
// The id is assigned by NewOutboundRequestLog and cannot be changed afterwards.
// ClientID is the only field the publisher touches after construction.
type OutboundRequestLog struct {
	id                 string
	clientID           string
	RequestURI         string
	RequestMethod      string
	RequestHeaders     []NameValues
	RequestBody        string
	ResponseStatusCode int
	ResponseStatusText string
	ResponseHeaders    []NameValues
	ResponseBody       string
	StartTime          string
	EndTime            string
}

// outboundRequestLogWire is the queue message body.
type outboundRequestLogWire struct {
	ID                 string       `json:"id"`
	ClientID           string       `json:"clientId,omitempty"`
	RequestURI         string       `json:"requestUri"`
	RequestMethod      string       `json:"requestMethod"`
	RequestHeaders     []NameValues `json:"requestHeaders"`
	RequestBody        string       `json:"requestBody"`
	ResponseStatusCode int          `json:"responseStatusCode"`
	ResponseStatusText string       `json:"responseStatusText"`
	ResponseHeaders    []NameValues `json:"responseHeaders"`
	ResponseBody       string       `json:"responseBody"`
	StartTime          string       `json:"startTime"`
	EndTime            string       `json:"endTime"`
}

// NewOutboundRequestLog creates a new OutboundRequestLog with a fresh id
func NewOutboundRequestLog() *OutboundRequestLog {
	return &OutboundRequestLog{
		id: uuid.New().String(),
	}
}

// ID returns the correlation id of the record
func (l *OutboundRequestLog) ID() string {
	return l.id
}

// ClientID returns the publishing client id, empty when absent
func (l *OutboundRequestLog) ClientID() string {
	return l.clientID
}

// SetClientID sets the publishing client id. An empty id marks it absent.
func (l *OutboundRequestLog) SetClientID(clientID string) {
	l.clientID = clientID
}

// WithRequest sets the request side of the exchange
func (l *OutboundRequestLog) WithRequest(uri, method string, headers []NameValues, body string) *OutboundRequestLog {
	l.RequestURI = uri
	l.RequestMethod = method
	l.RequestHeaders = headers
	l.RequestBody = body
	return l
}

// WithResponse sets the response side of the exchange
func (l *OutboundRequestLog) WithResponse(statusCode int, statusText string, headers []NameValues, body string) *OutboundRequestLog {
	l.ResponseStatusCode = statusCode
	l.ResponseStatusText = statusText
	l.ResponseHeaders = headers
	l.ResponseBody = body
	return l
}

// WithTiming sets the start and end timestamps
func (l *OutboundRequestLog) WithTiming(start, end time.Time) *OutboundRequestLog {
	l.StartTime = start.Format(TimeLayout)
	l.EndTime = end.Format(TimeLayout)
	return l
}

// MarshalJSON implements json.Marshaler
func (l *OutboundRequestLog) MarshalJSON() ([]byte, error) {
	return json.Marshal(outboundRequestLogWire{
		ID:                 l.id,
		ClientID:           l.clientID,
		RequestURI:         l.RequestURI,
		RequestMethod:      l.RequestMethod,
		RequestHeaders:     l.RequestHeaders,
		RequestBody:        l.RequestBody,
		ResponseStatusCode: l.ResponseStatusCode,
		ResponseStatusText: l.ResponseStatusText,
		ResponseHeaders:    l.ResponseHeaders,
		ResponseBody:       l.ResponseBody,
		StartTime:          l.StartTime,
		EndTime:            l.EndTime,
	})
}

// UnmarshalJSON implements json.Unmarshaler for queue consumers
func (l *OutboundRequestLog) UnmarshalJSON(data []byte) error {
	var wire outboundRequestLogWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*l = OutboundRequestLog{
		id:                 wire.ID,
		clientID:           wire.ClientID,
		RequestURI:         wire.RequestURI,
		RequestMethod:      wire.RequestMethod,
		RequestHeaders:     wire.RequestHeaders,
		RequestBody:        wire.RequestBody,
		ResponseStatusCode: wire.ResponseStatusCode,
		ResponseStatusText: wire.ResponseStatusText,
		ResponseHeaders:    wire.ResponseHeaders,
		ResponseBody:       wire.ResponseBody,
		StartTime:          wire.StartTime,
		EndTime:            wire.EndTime,
	}
	return nil
}
