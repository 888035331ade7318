package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Crew Bid API",
        "description": "Compiles pilot schedule preferences into ranked schedules and layered bids.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Bids", "description": "Preference validation, schedule optimisation and layer generation"},
        {"name": "Ops", "description": "Health, readiness and metrics"}
    ],
    "paths": {
        "/bids/validate": {
            "post": {
                "tags": ["Bids"],
                "summary": "Validate preferences against work rules and the trip pool",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CompileRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bids/optimize": {
            "post": {
                "tags": ["Bids"],
                "summary": "Generate ranked schedule candidates",
                "description": "Candidates are retained in the bid session returned in the X-Bid-Session header.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CompileRequest"}},
                    {"name": "X-Bid-Session", "in": "header", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bids/layers": {
            "post": {
                "tags": ["Bids"],
                "summary": "Generate the layered bid and its export artifact",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CompileRequest"}},
                    {"name": "X-Bid-Session", "in": "header", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bids/sessions/{sessionId}/candidates/{candidateId}/explain": {
            "get": {
                "tags": ["Bids"],
                "summary": "Explain a candidate's score",
                "parameters": [
                    {"name": "sessionId", "in": "path", "required": true, "type": "string"},
                    {"name": "candidateId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bids/sessions/{sessionId}/exports/{hash}": {
            "get": {
                "tags": ["Bids"],
                "summary": "Fetch an export artifact",
                "description": "Without a format the artifact text is returned in the envelope. format=text, csv or pdf streams a file.",
                "parameters": [
                    {"name": "sessionId", "in": "path", "required": true, "type": "string"},
                    {"name": "hash", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["text", "csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bids/downloads/{token}": {
            "get": {
                "tags": ["Bids"],
                "summary": "Download an archived export via signed token",
                "produces": ["text/plain"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Export file"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CompileRequest": {
            "type": "object",
            "required": ["month"],
            "properties": {
                "session_id": {"type": "string"},
                "month": {"type": "string", "example": "2026-03"},
                "profile": {
                    "type": "object",
                    "properties": {
                        "airline": {"type": "string"},
                        "base": {"type": "string"},
                        "seat": {"type": "string"},
                        "equipment": {"type": "array", "items": {"type": "string"}}
                    }
                },
                "preferences": {
                    "type": "object",
                    "properties": {
                        "hard_constraints": {
                            "type": "object",
                            "properties": {
                                "no_weekends": {"type": "boolean"},
                                "no_red_eyes": {"type": "boolean"},
                                "domestic_only": {"type": "boolean"},
                                "max_duty_days": {"type": "integer"}
                            }
                        },
                        "soft_prefs": {"type": "object", "additionalProperties": {"type": "number"}},
                        "targets": {
                            "type": "object",
                            "properties": {
                                "credit_hours": {"type": "number"},
                                "trip_length": {"type": "integer"},
                                "layover_cities": {"type": "array", "items": {"type": "string"}}
                            }
                        },
                        "free_text": {"type": "string"},
                        "persona": {"type": "string"}
                    }
                },
                "pairings": {"type": "array", "items": {"$ref": "#/definitions/TripPairing"}}
            }
        },
        "TripPairing": {
            "type": "object",
            "required": ["id", "report_at", "release_at"],
            "properties": {
                "id": {"type": "string"},
                "route": {"type": "array", "items": {"type": "string"}},
                "duration_days": {"type": "integer"},
                "report_at": {"type": "string", "format": "date-time"},
                "release_at": {"type": "string", "format": "date-time"},
                "credit_hours": {"type": "number"},
                "block_hours": {"type": "number"},
                "layovers": {"type": "array", "items": {"type": "string"}},
                "red_eye": {"type": "boolean"},
                "international": {"type": "boolean"},
                "equipment": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
