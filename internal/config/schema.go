package config

// schemaJSON — JSON Schema документа config.json (draft-07).
// Валидация выполняется через gojsonschema при загрузке и перед каждой
// записью. Неизвестные ключи допускаются и сохраняются при записи.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "_schema_version": {"type": "string"},
    "telegram": {
      "type": "object",
      "properties": {
        "api_id": {"type": "integer", "minimum": 0},
        "api_hash": {
          "type": "string",
          "pattern": "^$|^[0-9a-fA-F]{32}$"
        },
        "phone": {
          "type": "string",
          "pattern": "^$|^\\+[0-9]{10,15}$"
        },
        "session_name": {"type": "string", "minLength": 1},
        "connection_timeout": {"type": "integer", "minimum": 1, "maximum": 600},
        "request_timeout": {"type": "integer", "minimum": 1, "maximum": 600},
        "retry_attempts": {"type": "integer", "minimum": 0, "maximum": 10},
        "retry_delay": {"type": "integer", "minimum": 1, "maximum": 300},
        "flood_sleep_threshold": {"type": "integer", "minimum": 0, "maximum": 3600},
        "device_model": {"type": "string"},
        "app_version": {"type": "string"},
        "server_environment": {"enum": ["production", "test"]},
        "mtproto_servers": {
          "type": "object",
          "additionalProperties": {
            "type": "object",
            "properties": {
              "dc_id": {"type": "integer", "minimum": 1, "maximum": 10},
              "ip": {"type": "string", "minLength": 1},
              "port": {"type": "integer", "minimum": 1, "maximum": 65535},
              "public_key": {"type": "string"}
            },
            "required": ["dc_id", "ip", "port"]
          }
        }
      }
    },
    "rate_limit": {
      "type": "object",
      "properties": {
        "requests_per_second": {"type": "number", "exclusiveMinimum": 0, "maximum": 100}
      }
    },
    "scanning": {
      "type": "object",
      "properties": {
        "max_messages": {"type": ["integer", "null"], "minimum": 0},
        "batch_size": {"type": "integer", "minimum": 1, "maximum": 1000},
        "direction": {"enum": ["newest_first", "oldest_first"]},
        "inter_batch_delay": {"type": "number", "minimum": 0, "maximum": 60},
        "file_types": {
          "type": "object",
          "additionalProperties": {"type": "boolean"}
        }
      }
    },
    "filters": {
      "type": "object",
      "properties": {
        "min_file_size": {"type": "integer", "minimum": 0},
        "max_file_size": {"type": "integer", "minimum": 0},
        "file_extensions": {"type": "array", "items": {"type": "string"}},
        "exclude_extensions": {"type": "array", "items": {"type": "string"}},
        "date_from": {"type": ["string", "null"]},
        "date_to": {"type": ["string", "null"]},
        "name_allow_patterns": {"type": "array", "items": {"type": "string"}},
        "name_deny_patterns": {"type": "array", "items": {"type": "string"}},
        "dedupe": {"type": "boolean"},
        "skip_existing": {"type": "boolean"}
      }
    },
    "output": {
      "type": "object",
      "properties": {
        "directory": {"type": "string", "minLength": 1},
        "backup_existing": {"type": "boolean"},
        "sheet_name": {"type": "string", "minLength": 1},
        "formats": {
          "type": "object",
          "additionalProperties": {
            "type": "object",
            "properties": {
              "enabled": {"type": "boolean"}
            }
          }
        }
      }
    },
    "download": {
      "type": "object",
      "properties": {
        "generate_links": {"type": "boolean"},
        "include_preview": {"type": "boolean"},
        "auto_download": {"type": "boolean"},
        "directory": {"type": "string", "minLength": 1},
        "workers": {"type": "integer", "minimum": 1, "maximum": 16}
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"enum": ["debug", "info", "warning", "error", "critical"]},
        "directory": {"type": "string", "minLength": 1},
        "max_size_mb": {"type": "integer", "minimum": 1, "maximum": 1024},
        "backup_count": {"type": "integer", "minimum": 0, "maximum": 50},
        "console_output": {"type": "boolean"}
      }
    },
    "api": {
      "type": "object",
      "properties": {
        "port": {"type": "integer", "minimum": 1, "maximum": 65535}
      }
    }
  }
}`
