// Package docs registers the OpenAPI description served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/healthz": {"get": {"responses": {"200": {"description": "OK"}}}},
        "/admin/rooms": {"post": {
            "tags": ["admin"], "summary": "Create room with its seat grid",
            "security": [{"BearerAuth": []}],
            "parameters": [{"in": "body", "name": "req", "required": true, "schema": {"$ref": "#/definitions/CreateRoomRequest"}}],
            "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/Room"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}}, "409": {"description": "name taken", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
        }},
        "/admin/sessions": {"post": {
            "tags": ["admin"], "summary": "Schedule a session",
            "security": [{"BearerAuth": []}],
            "parameters": [{"in": "body", "name": "req", "required": true, "schema": {"$ref": "#/definitions/CreateSessionRequest"}}],
            "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/Session"}}, "404": {"description": "room not found", "schema": {"$ref": "#/definitions/ErrorResponse"}}, "409": {"description": "overlaps another session", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
        }},
        "/rooms/{id}/seats": {"get": {
            "tags": ["catalog"], "summary": "List seats of a room",
            "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/Seat"}}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
        }},
        "/sessions": {"get": {
            "tags": ["catalog"], "summary": "List sessions",
            "parameters": [{"in": "query", "name": "film_id", "type": "integer"}],
            "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/Session"}}}}
        }},
        "/sessions/{id}": {"get": {
            "tags": ["catalog"], "summary": "Get session",
            "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Session"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
        }},
        "/sessions/{id}/seats": {"get": {
            "tags": ["catalog"], "summary": "Seat map of a session",
            "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/SeatWithStatus"}}}}
        }},
        "/sessions/{id}/availability": {"get": {
            "tags": ["catalog"], "summary": "Availability counters of a session",
            "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/AvailabilityResponse"}}}
        }},
        "/sessions/{id}/events": {"get": {
            "tags": ["catalog"], "summary": "Stream seat map changes of a session",
            "produces": ["text/event-stream"],
            "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}],
            "responses": {"200": {"description": "OK"}, "503": {"description": "notifications disabled"}}
        }},
        "/sessions/{id}/reservations": {"post": {
            "tags": ["reservations"], "summary": "Hold seats (idempotent)",
            "security": [{"BearerAuth": []}],
            "parameters": [
                {"in": "path", "name": "id", "type": "integer", "required": true},
                {"in": "header", "name": "Idempotency-Key", "type": "string"},
                {"in": "body", "name": "req", "required": true, "schema": {"$ref": "#/definitions/CreateHoldRequest"}}
            ],
            "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/Reservation"}}, "409": {"description": "seats unavailable", "schema": {"$ref": "#/definitions/ErrorResponse"}}, "429": {"description": "rate limited"}}
        }},
        "/reservations/{id}": {
            "get": {"tags": ["reservations"], "summary": "Get reservation", "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Reservation"}}}},
            "delete": {"tags": ["reservations"], "summary": "Release reservation", "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {"204": {"description": "No Content"}, "403": {"description": "Forbidden"}}}
        },
        "/reservations/{id}/transactions": {"post": {
            "tags": ["payments"], "summary": "Start payment of a reservation", "security": [{"BearerAuth": []}],
            "parameters": [
                {"in": "path", "name": "id", "type": "string", "required": true},
                {"in": "body", "name": "req", "required": true, "schema": {"$ref": "#/definitions/InitiateTransactionRequest"}}
            ],
            "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/Transaction"}}, "400": {"description": "amount mismatch"}, "409": {"description": "reservation not held"}, "410": {"description": "hold expired"}}
        }},
        "/transactions/{id}": {"get": {
            "tags": ["payments"], "summary": "Get transaction", "security": [{"BearerAuth": []}],
            "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Transaction"}}}
        }},
        "/transactions/{id}/settle": {"post": {
            "tags": ["payments"], "summary": "Settle transaction", "security": [{"BearerAuth": []}],
            "parameters": [
                {"in": "path", "name": "id", "type": "string", "required": true},
                {"in": "body", "name": "req", "required": true, "schema": {"$ref": "#/definitions/SettleTransactionRequest"}}
            ],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Transaction"}}, "403": {"description": "admin only"}, "409": {"description": "already settled"}, "410": {"description": "reservation expired before settlement"}}
        }}
    },
    "definitions": {
        "ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}, "seat_ids": {"type": "array", "items": {"type": "integer"}}}},
        "CreateRoomRequest": {"type": "object", "required": ["name", "rows", "seats_per_row"], "properties": {"name": {"type": "string"}, "type": {"type": "string"}, "rows": {"type": "integer", "minimum": 1, "maximum": 26}, "seats_per_row": {"type": "integer", "minimum": 1, "maximum": 100}}},
        "CreateSessionRequest": {"type": "object", "required": ["film_id", "room_id", "starts_at", "ends_at", "price"], "properties": {"film_id": {"type": "integer"}, "room_id": {"type": "integer"}, "starts_at": {"type": "string", "format": "date-time"}, "ends_at": {"type": "string", "format": "date-time"}, "price": {"type": "string", "example": "150.00"}}},
        "CreateHoldRequest": {"type": "object", "required": ["seat_ids"], "properties": {"seat_ids": {"type": "array", "items": {"type": "integer"}}, "ttl_sec": {"type": "integer", "minimum": 0, "maximum": 86400}}},
        "InitiateTransactionRequest": {"type": "object", "required": ["amount"], "properties": {"amount": {"type": "string", "example": "450.00"}}},
        "SettleTransactionRequest": {"type": "object", "required": ["succeeded"], "properties": {"succeeded": {"type": "boolean"}}},
        "AvailabilityResponse": {"type": "object", "properties": {"session_id": {"type": "integer"}, "available": {"type": "integer"}, "held": {"type": "integer"}, "sold": {"type": "integer"}, "total": {"type": "integer"}}},
        "Room": {"type": "object", "properties": {"id": {"type": "integer"}, "name": {"type": "string"}, "type": {"type": "string"}, "rows": {"type": "integer"}, "seats_per_row": {"type": "integer"}, "total_seats": {"type": "integer"}}},
        "Seat": {"type": "object", "properties": {"id": {"type": "integer"}, "room_id": {"type": "integer"}, "row": {"type": "integer"}, "number": {"type": "integer"}, "label": {"type": "string"}}},
        "SeatWithStatus": {"type": "object", "properties": {"id": {"type": "integer"}, "room_id": {"type": "integer"}, "row": {"type": "integer"}, "number": {"type": "integer"}, "label": {"type": "string"}, "status": {"type": "string", "enum": ["available", "held", "sold"]}}},
        "Session": {"type": "object", "properties": {"id": {"type": "integer"}, "film_id": {"type": "integer"}, "room_id": {"type": "integer"}, "starts_at": {"type": "string", "format": "date-time"}, "ends_at": {"type": "string", "format": "date-time"}, "price": {"type": "string"}}},
        "Reservation": {"type": "object", "properties": {"id": {"type": "string", "format": "uuid"}, "session_id": {"type": "integer"}, "user_id": {"type": "integer"}, "seat_ids": {"type": "array", "items": {"type": "integer"}}, "status": {"type": "string", "enum": ["held", "confirmed", "released", "expired"]}, "created_at": {"type": "string", "format": "date-time"}, "expires_at": {"type": "string", "format": "date-time"}, "updated_at": {"type": "string", "format": "date-time"}}},
        "Transaction": {"type": "object", "properties": {"id": {"type": "string", "format": "uuid"}, "reservation_id": {"type": "string", "format": "uuid"}, "amount": {"type": "string"}, "status": {"type": "string", "enum": ["pending", "succeeded", "failed"]}, "created_at": {"type": "string", "format": "date-time"}, "settled_at": {"type": "string", "format": "date-time"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "cinetix API",
	Description:      "Cinema seat reservation and booking service.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
