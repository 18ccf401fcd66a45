package api

const createAccountSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["name"],
  "properties": {
    "name": {"type": "string", "minLength": 1, "maxLength": 100},
    "description": {"type": ["string", "null"], "maxLength": 255},
    "balance": {"type": ["number", "string"], "pattern": "^-?[0-9]+(\\.[0-9]+)?$"},
    "active": {"type": ["boolean", "null"]}
  }
}`

const updateAccountSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["name", "balance", "version"],
  "properties": {
    "name": {"type": "string", "minLength": 1, "maxLength": 100},
    "description": {"type": ["string", "null"], "maxLength": 255},
    "balance": {"type": ["number", "string"], "pattern": "^-?[0-9]+(\\.[0-9]+)?$"},
    "active": {"type": ["boolean", "null"]},
    "version": {"type": "integer", "minimum": 1}
  }
}`

// Ids and amount stay optional here so the engine reports which field is
// missing.
const transferSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "source_id": {"type": ["integer", "null"]},
    "destination_id": {"type": ["integer", "null"]},
    "amount": {"type": ["number", "string", "null"], "pattern": "^-?[0-9]+(\\.[0-9]+)?$"}
  }
}`
