package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "VaxPort API",
        "description": "Vaccination administration portal: QR-driven dose recording, schedules and drives",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Staff login and token refresh"},
        {"name": "Administrations", "description": "Exactly-once dose recording"},
        {"name": "Doses", "description": "Schedules, lookups and QR payloads"},
        {"name": "DeepLinks", "description": "Shared link resolution with one-time tokens"},
        {"name": "Drives", "description": "Field-worker vaccination drives"},
        {"name": "Exports", "description": "Certificates and record exports"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Tokens issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "Tokens rotated"},
                    "401": {"description": "Expired or revoked token"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Log out",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "Refresh tokens revoked"},
                    "401": {"description": "Missing or invalid token"}
                }
            }
        },
        "/administrations": {
            "post": {
                "tags": ["Administrations"],
                "summary": "Record a dose administration",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AdministerRequest"}}
                ],
                "responses": {
                    "201": {"description": "Dose recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already administered; body carries the winning record"},
                    "400": {"description": "Malformed payload"},
                    "404": {"description": "Unknown dose record"}
                }
            }
        },
        "/doses": {
            "get": {
                "tags": ["Doses"],
                "summary": "Fetch one dose record by payload triple",
                "parameters": [
                    {"name": "subject_id", "in": "query", "type": "string", "required": true},
                    {"name": "vaccine_template_id", "in": "query", "type": "string", "required": true},
                    {"name": "dose", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Dose with derived status"},
                    "404": {"description": "Unknown dose record"}
                }
            }
        },
        "/doses/qr": {
            "get": {
                "tags": ["Doses"],
                "summary": "Generate a scannable payload",
                "parameters": [
                    {"name": "role", "in": "query", "type": "string"},
                    {"name": "subject_id", "in": "query", "type": "string", "required": true},
                    {"name": "vaccine_template_id", "in": "query", "type": "string", "required": true},
                    {"name": "dose", "in": "query", "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["text", "png"]}
                ],
                "responses": {
                    "200": {"description": "Payload text or PNG image"}
                }
            }
        },
        "/patients/{id}/schedule": {
            "get": {
                "tags": ["Doses"],
                "summary": "Vaccination schedule with derived statuses",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "status", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Schedule"}
                }
            }
        },
        "/deeplinks/resolve": {
            "get": {
                "tags": ["DeepLinks"],
                "summary": "Resolve a shared link into a payload and one-time token",
                "parameters": [
                    {"name": "path", "in": "query", "type": "string"},
                    {"name": "user_id", "in": "query", "type": "string"},
                    {"name": "vaccine_template_id", "in": "query", "type": "string"},
                    {"name": "dose", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Resolution"},
                    "400": {"description": "Malformed link"}
                }
            }
        },
        "/deeplinks/{token}/consume": {
            "post": {
                "tags": ["DeepLinks"],
                "summary": "Spend a one-time confirmation token",
                "parameters": [
                    {"name": "token", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "Payload"},
                    "410": {"description": "Token already spent"}
                }
            }
        },
        "/drives/mine": {
            "get": {
                "tags": ["Drives"],
                "summary": "Drives assigned to the current worker",
                "responses": {
                    "200": {"description": "Drives"}
                }
            }
        },
        "/drives/participant-by-qr": {
            "post": {
                "tags": ["Drives"],
                "summary": "Identify a participant from a scanned code",
                "responses": {
                    "200": {"description": "Participant summary"},
                    "403": {"description": "Not registered for this drive"}
                }
            }
        },
        "/drives/{id}/administrations": {
            "post": {
                "tags": ["Drives"],
                "summary": "Administer the drive's vaccine",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "201": {"description": "Dose recorded"},
                    "409": {"description": "Already administered"}
                }
            }
        },
        "/patients/{id}/certificate": {
            "post": {
                "tags": ["Exports"],
                "summary": "Issue a vaccination certificate",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "201": {"description": "Signed download link"},
                    "404": {"description": "Nothing to certify"}
                }
            }
        },
        "/certificates/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a certificate",
                "parameters": [
                    {"name": "token", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "PDF"},
                    "401": {"description": "Invalid or expired link"}
                }
            }
        },
        "/patients/{id}/records.csv": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export dose records as CSV",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "CSV"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "AdministerRequest": {
            "type": "object",
            "properties": {
                "subject_id": {"type": "string"},
                "vaccine_template_id": {"type": "string"},
                "dose": {"type": "string"},
                "notes": {"type": "string"}
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
                "pagination": {"type": "object"},
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
