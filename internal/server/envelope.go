package server

import (
	"encoding/json"

	"github.com/Lumos-Labs-HQ/flashgate/internal/gateway"
	"github.com/gofiber/fiber/v2"
)

// UnknownRequestID is echoed when the caller sent no request_id.
const UnknownRequestID = "unknown"

const (
	typeAck  = "ack"
	typeNack = "nack"
)

// Response is the envelope returned for every /api call.
type Response struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Payload   any    `json:"payload"`
}

// ErrorPayload is the payload of a nack.
type ErrorPayload struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ack(c *fiber.Ctx, requestID string, payload any) error {
	return c.Status(fiber.StatusOK).JSON(Response{Type: typeAck, RequestID: requestID, Payload: payload})
}

func nack(c *fiber.Ctx, requestID, code, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(Response{
		Type:      typeNack,
		RequestID: requestID,
		Payload:   ErrorPayload{Status: "error", Code: code, Message: message},
	})
}

// transportError answers method and routing failures outside the envelope.
func transportError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}

// parseEnvelope decodes an /api body into a gateway request. The request id
// is filled in even when decoding fails further along.
func parseEnvelope(body []byte) (gateway.Request, *gateway.Error) {
	req := gateway.Request{ID: UnknownRequestID}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return req, &gateway.Error{Kind: gateway.KindMalformed, Code: gateway.CodeInvalidJSON, Message: "malformed JSON", Err: err}
	}
	req.ID = requestID(raw["request_id"])

	if action, ok := raw["action"]; ok {
		if err := json.Unmarshal(action, &req.Action); err != nil {
			return req, gateway.NewError(gateway.KindMalformed, "action must be a string")
		}
	}

	payload, ok := raw["payload"]
	if !ok || string(payload) == "null" {
		return req, gateway.NewError(gateway.KindMalformed, "payload is required")
	}
	if err := json.Unmarshal(payload, &req.Payload); err != nil || req.Payload == nil {
		return req, gateway.NewError(gateway.KindMalformed, "payload must be an object")
	}
	return req, nil
}

// peekRequestID extracts request_id from a body that has not been parsed yet.
func peekRequestID(body []byte) string {
	var probe struct {
		RequestID json.RawMessage `json:"request_id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return UnknownRequestID
	}
	return requestID(probe.RequestID)
}

func requestID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return UnknownRequestID
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return UnknownRequestID
		}
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil && n != "" {
		return n.String()
	}
	return UnknownRequestID
}
