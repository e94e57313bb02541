// Package docs registers the intake service API document with swag.
// It is maintained by hand alongside internal/ingest.
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
        "sid": {"type": "apiKey", "in": "header", "name": "sid"},
        "apikey": {"type": "apiKey", "in": "header", "name": "apikey"},
        "session": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "paths": {
        "/api/webhooks/health": {
            "get": {
                "tags": ["webhooks"],
                "summary": "Webhook liveness",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/webhooks/nextgen": {
            "post": {
                "tags": ["webhooks"],
                "summary": "Receive a NextGen lead",
                "security": [{"sid": [], "apikey": []}],
                "consumes": ["application/json", "application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "lead", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "Lead updated", "schema": {"$ref": "#/definitions/WebhookResponse"}},
                    "201": {"description": "Lead created", "schema": {"$ref": "#/definitions/WebhookResponse"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/FailureResponse"}},
                    "401": {"description": "Bad credentials"},
                    "429": {"description": "Rate limited"},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/FailureResponse"}}
                }
            }
        },
        "/api/webhooks/{vendor}": {
            "post": {
                "tags": ["webhooks"],
                "summary": "Receive a lead from a named vendor",
                "security": [{"sid": [], "apikey": []}],
                "consumes": ["application/json", "application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "path", "name": "vendor", "type": "string", "required": true},
                    {"in": "body", "name": "lead", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "Lead updated", "schema": {"$ref": "#/definitions/WebhookResponse"}},
                    "201": {"description": "Lead created", "schema": {"$ref": "#/definitions/WebhookResponse"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/FailureResponse"}},
                    "401": {"description": "Bad credentials"},
                    "429": {"description": "Rate limited"}
                }
            }
        },
        "/api/leads/import/csv": {
            "post": {
                "tags": ["import"],
                "summary": "Import a vendor CSV export",
                "security": [{"session": []}],
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "formData", "name": "file", "type": "file", "required": true},
                    {"in": "formData", "name": "vendor", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Import finished", "schema": {"$ref": "#/definitions/ImportResponse"}},
                    "400": {"description": "Unreadable or unrecognized file"},
                    "401": {"description": "No session"}
                }
            }
        }
    },
    "definitions": {
        "WebhookResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "leadId": {"type": "string"},
                "message": {"type": "string"},
                "isNew": {"type": "boolean"},
                "processMs": {"type": "integer"}
            }
        },
        "FailureResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "message": {"type": "string"},
                "error_code": {"type": "string"},
                "errors": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "field": {"type": "string"},
                            "message": {"type": "string"}
                        }
                    }
                }
            }
        },
        "ImportResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "vendor": {"type": "string"},
                "batchId": {"type": "string"},
                "stats": {
                    "type": "object",
                    "properties": {
                        "imported": {"type": "integer"},
                        "updated": {"type": "integer"},
                        "processed": {"type": "integer"},
                        "skipped": {"type": "integer"},
                        "unchanged": {"type": "integer"},
                        "failed": {"type": "integer"}
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds the exported document metadata.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Lead Intake Service API",
	Description:      "Vendor webhooks and CSV import for multi-tenant lead intake",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
