package main

// openAPIDocument describes the ingress JSON shape (spec §6) so a
// client can generate a request builder without reading the registry
// package. It intentionally omits the legacy flat shape — new clients
// should use the canonical nested shape.
const openAPIDocument = `openapi: 3.0.3
info:
  title: Task Scheduler Ingress API
  version: 1.0.0
paths:
  /tasks:
    post:
      summary: Submit a task for durable scheduling
      security:
        - basicAuth: []
      requestBody:
        required: true
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/ScheduleRequest'
      responses:
        '201':
          description: Task persisted
        '400':
          description: Request failed validation
        '409':
          description: A task with this taskName already exists
  /internal/tasks:
    post:
      summary: Submit a task for durable scheduling (forwarded service calls)
      security:
        - bearerAuth: []
      requestBody:
        required: true
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/ScheduleRequest'
      responses:
        '201':
          description: Task persisted
        '400':
          description: Request failed validation
        '409':
          description: A task with this taskName already exists
components:
  securitySchemes:
    basicAuth:
      type: http
      scheme: basic
    bearerAuth:
      type: http
      scheme: bearer
      bearerFormat: JWT
  schemas:
    ScheduleRequest:
      type: object
      required: [targetTopic, payload]
      properties:
        taskName:
          type: string
          description: Optional. Required to deduplicate a recurring task across resubmission.
        targetTopic:
          type: string
        payload:
          type: object
          required: [data]
          properties:
            data:
              type: string
              format: byte
            attributes:
              type: object
              additionalProperties:
                type: string
        schedule:
          type: object
          required: [type]
          properties:
            type:
              type: string
              enum: [one-time, cron, fixed-delay, daily]
            executionTime:
              type: integer
              format: int64
              description: Epoch milliseconds. Required when type is one-time.
            expression:
              type: string
              description: Cron expression (5 or 6 fields). Required when type is cron.
            delaySeconds:
              type: integer
              description: Required when type is fixed-delay.
            hour:
              type: integer
            minute:
              type: integer
            initialExecutionTime:
              type: integer
              format: int64
              description: Epoch milliseconds. Optional for recurring schedules; a past value fires immediately.
`
