package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Rollcall API",
        "description": "Classroom attendance engine with rotating QR tokens",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Scans", "description": "Attendance scan recording and offline sync"},
        {"name": "Sessions", "description": "Session and round lifecycle"},
        {"name": "Policies", "description": "Lateness policy administration"},
        {"name": "Excuses", "description": "Excuse request workflow"}
    ],
    "paths": {
        "/scans": {
            "post": {
                "tags": ["Scans"],
                "summary": "Record an attendance scan",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScanRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scans/sync": {
            "post": {
                "tags": ["Scans"],
                "summary": "Replay offline scans in capture order",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SyncScansRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Start a session for a group",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StartSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/rounds": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Open the next round",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StartRoundRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/rounds/{roundId}": {
            "delete": {
                "tags": ["Sessions"],
                "summary": "Close a round",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "roundId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/sessions/{id}/rounds/{roundId}/token": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Issue a replacement QR token",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "roundId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/end": {
            "post": {
                "tags": ["Sessions"],
                "summary": "End a session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/summary": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Live session summary",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/fraud-signals": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Advisory fraud signals",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/policies": {
            "post": {
                "tags": ["Policies"],
                "summary": "Create a policy version",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreatePolicyRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/policies/{id}/assign": {
            "post": {
                "tags": ["Policies"],
                "summary": "Assign a policy to a course",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AssignPolicyRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/policies/resolve": {
            "get": {
                "tags": ["Policies"],
                "summary": "Resolve the effective policy",
                "parameters": [
                    {"name": "courseId", "in": "query", "type": "string"},
                    {"name": "facultyId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/excuses": {
            "post": {
                "tags": ["Excuses"],
                "summary": "Submit an excuse request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitExcuseRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/excuses/{id}/review": {
            "post": {
                "tags": ["Excuses"],
                "summary": "Review an excuse request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReviewExcuseRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "ScanRequest": {
            "type": "object",
            "properties": {
                "roundId": {"type": "string"},
                "token": {"type": "string"},
                "deviceFingerprint": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "capturedAt": {"type": "string"}
            },
            "required": ["roundId", "token"]
        },
        "SyncScansRequest": {
            "type": "object",
            "properties": {
                "scans": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/QueuedScanItem"}
                }
            },
            "required": ["scans"]
        },
        "QueuedScanItem": {
            "type": "object",
            "properties": {
                "clientScanId": {"type": "string"},
                "roundId": {"type": "string"},
                "token": {"type": "string"},
                "capturedAt": {"type": "string"},
                "deviceFingerprint": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"}
            },
            "required": ["clientScanId", "roundId", "token"]
        },
        "StartSessionRequest": {
            "type": "object",
            "properties": {
                "groupId": {"type": "string"},
                "isBreak": {"type": "boolean"},
                "geofence": {"$ref": "#/definitions/GeofenceOpts"}
            },
            "required": ["groupId"]
        },
        "StartRoundRequest": {
            "type": "object",
            "properties": {
                "isBreak": {"type": "boolean"},
                "geofence": {"$ref": "#/definitions/GeofenceOpts"}
            }
        },
        "GeofenceOpts": {
            "type": "object",
            "properties": {
                "lat": {"type": "number"},
                "lon": {"type": "number"},
                "radius_m": {"type": "number"}
            }
        },
        "CreatePolicyRequest": {
            "type": "object",
            "properties": {
                "scope": {"type": "string"},
                "scopeId": {"type": "string"},
                "rules": {"$ref": "#/definitions/PolicyRules"},
                "effectiveFrom": {"type": "string"}
            },
            "required": ["scope", "rules"]
        },
        "PolicyRules": {
            "type": "object",
            "properties": {
                "lateAfterMinutes": {
                    "type": "object",
                    "properties": {
                        "first_hour": {"type": "integer"},
                        "break": {"type": "integer"}
                    }
                },
                "graceMinutes": {"type": "integer"},
                "maxAbsences": {"type": "integer"}
            }
        },
        "AssignPolicyRequest": {
            "type": "object",
            "properties": {
                "courseId": {"type": "string"}
            },
            "required": ["courseId"]
        },
        "SubmitExcuseRequest": {
            "type": "object",
            "properties": {
                "roundId": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["roundId", "reason"]
        },
        "ReviewExcuseRequest": {
            "type": "object",
            "properties": {
                "approve": {"type": "boolean"}
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
