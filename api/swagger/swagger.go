package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Timetable API",
        "description": "Weekly class timetable generation, preview and export",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [
        {"BearerAuth": []}
    ],
    "tags": [
        {"name": "Timetable", "description": "Generation runs, proposals and the stored schedule"}
    ],
    "paths": {
        "/timetable/generate": {
            "post": {
                "tags": ["Timetable"],
                "summary": "Generate the weekly timetable from stored entities",
                "description": "Partial results return 200 with placed and failed counts. With async=true the run is queued and 202 is returned.",
                "parameters": [
                    {"name": "async", "in": "query", "type": "boolean"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/GenerateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Institution calendar missing", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "No lesson could be placed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/preview": {
            "post": {
                "tags": ["Timetable"],
                "summary": "Preview a timetable for an inline dataset",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PreviewRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid dataset", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "No lesson could be placed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/proposals/{id}/commit": {
            "post": {
                "tags": ["Timetable"],
                "summary": "Persist a previewed proposal",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Proposal not found or expired", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/runs": {
            "get": {
                "tags": ["Timetable"],
                "summary": "List recent generation runs",
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/runs/{id}": {
            "get": {
                "tags": ["Timetable"],
                "summary": "Get one generation run with its audit",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/schedule": {
            "get": {
                "tags": ["Timetable"],
                "summary": "List stored timetable slots",
                "parameters": [
                    {"name": "groupId", "in": "query", "type": "string"},
                    {"name": "teacherId", "in": "query", "type": "string"},
                    {"name": "classroomId", "in": "query", "type": "string"},
                    {"name": "day", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Timetable"],
                "summary": "Delete every stored timetable slot",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/schedule/export": {
            "get": {
                "tags": ["Timetable"],
                "summary": "Download the stored timetable",
                "produces": ["text/csv", "application/pdf", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf", "xlsx"]},
                    {"name": "groupId", "in": "query", "type": "string"},
                    {"name": "teacherId", "in": "query", "type": "string"},
                    {"name": "classroomId", "in": "query", "type": "string"},
                    {"name": "day", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}}
                }
            }
        }
    },
    "definitions": {
        "GenerateRequest": {
            "type": "object",
            "properties": {
                "seed": {"type": "integer", "format": "int64"},
                "includeLogs": {"type": "boolean"}
            }
        },
        "PreviewRequest": {
            "type": "object",
            "required": ["dataset"],
            "properties": {
                "dataset": {"$ref": "#/definitions/Dataset"},
                "seed": {"type": "integer", "format": "int64"},
                "includeLogs": {"type": "boolean"}
            }
        },
        "Dataset": {
            "type": "object",
            "properties": {
                "institution": {"$ref": "#/definitions/Institution"},
                "class_groups": {"type": "array", "items": {"$ref": "#/definitions/ClassGroup"}},
                "subjects": {"type": "array", "items": {"$ref": "#/definitions/Subject"}},
                "teachers": {"type": "array", "items": {"$ref": "#/definitions/Teacher"}},
                "classrooms": {"type": "array", "items": {"$ref": "#/definitions/Classroom"}}
            }
        },
        "Institution": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "working_days": {"type": "array", "items": {"type": "string"}},
                "lessons_per_day": {"type": "integer"},
                "lesson_duration": {"type": "integer"},
                "break_durations": {"type": "array", "items": {"type": "integer"}},
                "start_time": {"type": "string", "example": "09:00"},
                "academic_weeks": {"type": "integer"}
            }
        },
        "ClassGroup": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "course": {"type": "integer"},
                "students_count": {"type": "integer"},
                "home_classroom_id": {"type": "string"},
                "subject_hours": {"type": "object", "additionalProperties": {"type": "integer"}}
            }
        },
        "Subject": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "type": {"type": "string", "enum": ["theory", "lab"]},
                "course": {"type": "integer"},
                "teacher_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "Teacher": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "first_name": {"type": "string"},
                "last_name": {"type": "string"},
                "subjects": {"type": "array", "items": {"type": "string"}},
                "home_classroom_id": {"type": "string"},
                "assigned_class_groups": {"type": "array", "items": {"type": "string"}},
                "available_hours": {"type": "object", "additionalProperties": {"type": "array", "items": {"type": "integer"}}}
            }
        },
        "Classroom": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "number": {"type": "string"},
                "floor": {"type": "integer"},
                "type": {"type": "string", "enum": ["theory", "lab", "teacher_lab"]},
                "capacity": {"type": "integer"},
                "has_computers": {"type": "boolean"},
                "specialization": {"type": "array", "items": {"type": "string"}}
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
